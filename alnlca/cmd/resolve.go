// Copyright © 2020-2021 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/shenwei356/alnlca/alnlca/cmd/lca"
	"github.com/shenwei356/alnlca/alnlca/cmd/taxon"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve reference IDs to TaxIds and lineages",
	Long: `Resolve reference IDs to TaxIds and lineages

Reference IDs are read from positional arguments, or from stdin
(one per line) if no arguments are given.

Candidates of an ID are tried in order:
  1. the ID itself
  2. the ID without the version (the part after the last ".")
  3. the first part of the ID split by spaces, tabs or "|",
     and its versionless form
  4. accessions embedded in the ID (GCF_/GCA_, NC_/NZ_/NT_/NG_/NW_,
     CP/CM, and other "XX_" prefixed ones), and their versionless forms

Output format:
  ID<TAB>TaxId<TAB>Lineage[<TAB>candidates]

Unresolved IDs have an empty TaxId and a lineage of "Unknown".

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq2taxid := getTaxonomyFiles(cmd)

		outFile := getFlagString(cmd, "out-file")
		showCandidates := getFlagBool(cmd, "show-candidates")

		tables := loadTables(opt, seq2taxid)

		outfh, err := xopen.Wopen(outFile)
		checkError(err)
		defer outfh.Close()

		var unresolved int
		process := func(token string) {
			taxid, l, ok := tables.Lookup(token)
			switch {
			case !ok && taxid == 0:
				unresolved++
				fmt.Fprintf(outfh, "%s\t\t%s", token, lca.Unknown)
			case !ok:
				fmt.Fprintf(outfh, "%s\t%d\t%s", token, taxid, lca.Unknown)
			default:
				fmt.Fprintf(outfh, "%s\t%d\t%s", token, taxid, l.Format(seq2taxid.Separator))
			}
			if showCandidates {
				fmt.Fprintf(outfh, "\t%s", strings.Join(taxon.Candidates(token), ", "))
			}
			fmt.Fprintln(outfh)
		}

		if len(args) > 0 {
			for _, token := range args {
				process(token)
			}
		} else {
			if opt.Verbose {
				log.Info("reading IDs from stdin")
			}
			fh, err := xopen.Ropen("-")
			checkError(err)
			scanner := bufio.NewScanner(fh)
			var token string
			for scanner.Scan() {
				token = strings.TrimRight(scanner.Text(), "\r\n")
				if token == "" {
					continue
				}
				process(token)
			}
			checkError(scanner.Err())
			fh.Close()
		}

		if unresolved > 0 {
			log.Warningf("%d ID(s) could not be resolved", unresolved)
		}
	},
}

func init() {
	RootCmd.AddCommand(resolveCmd)

	addTaxonomyFlags(resolveCmd)

	resolveCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))
	resolveCmd.Flags().BoolP("show-candidates", "c", false,
		formatFlagUsage(`Append the candidate keys tried for each ID.`))

	resolveCmd.SetUsageTemplate(usageTemplate("[IDs]"))
}
