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
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
	"github.com/twotwotwo/sorts"
)

var idmapCmd = &cobra.Command{
	Use:   "idmap",
	Short: "Dump the identifier index as a two-column table",
	Long: `Dump the identifier index as a two-column table

All tokens indexed from identifier tables (-I/--id-table) and TaxId mapping
files (-T/--taxid-map) are written, including versionless forms and
accessions embedded in identifiers. The output can be used as a TaxId mapping
file of "alnlca classify".

Output format:
  token<TAB>taxid

When a token is assigned to different TaxIds, the first one is kept.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq2taxid := getTaxonomyFiles(cmd)

		outFile := getFlagString(cmd, "out-file")
		sortTokens := getFlagBool(cmd, "sort")

		for _, file := range seq2taxid.IDTables {
			checkFileExists(file)
		}
		for _, file := range seq2taxid.TaxidMaps {
			checkFileExists(file)
		}

		idx := loadIdentifierIndex(opt, seq2taxid)

		tokens := idx.Tokens()
		if sortTokens {
			tokens = append(make([]string, 0, len(tokens)), tokens...)
			sorts.Quicksort(sort.StringSlice(tokens))
		}

		outfh, err := xopen.Wopen(outFile)
		checkError(err)
		defer outfh.Close()

		var taxid uint32
		for _, token := range tokens {
			taxid, _ = idx.Get(token)
			fmt.Fprintf(outfh, "%s\t%d\n", token, taxid)
		}

		if opt.Verbose || opt.Log2File {
			log.Infof("%s tokens written", humanize.Comma(int64(len(tokens))))
		}
	},
}

func init() {
	RootCmd.AddCommand(idmapCmd)

	addTaxonomyFlags(idmapCmd)

	idmapCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))
	idmapCmd.Flags().BoolP("sort", "s", false,
		formatFlagUsage(`Sort tokens, instead of keeping the order of first appearance.`))

	idmapCmd.SetUsageTemplate(usageTemplate(""))
}
