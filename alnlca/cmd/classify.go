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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/alnlca/alnlca/cmd/evidence"
	"github.com/shenwei356/alnlca/alnlca/cmd/lca"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign lineages to queries from their alignments",
	Long: `Assign lineages to queries from their alignments

Input:
  1. Alignment results of query sequences against reference genomes,
     plain or compressed, one or more files.
     Supported formats (-F/--format):
       paf        minimap2 PAF, with an optional dv:f: tag for identity
       lexicmap   LexicMap search results, with a header line
     Other tabular formats can be described with a YAML file (--schema).
  2. Reference IDs to TaxIds:
       -I/--id-table    identifier tables
       -T/--taxid-map   two-column mapping files
     Versionless IDs and accessions embedded in IDs are also indexed.
  3. Lineages of TaxIds:
       -H/--hierarchy   a hierarchy table, or
       -X/--taxdump     NCBI taxonomy dump files

Method:
  1. Hits of a query are weighted by query coverage times the hit count
     of the reference across all queries (abundance prior).
  2. From superkingdom down to strain, the name with the largest weight
     among taxa having a name at the rank is chosen. The confidence is the
     product of the shares of chosen names. Taxa without a name at a rank
     do not count for that rank.
  3. The walk stops at the first rank without any names.
     With --min-share, it also stops at the first rank where the chosen
     name has a share below the threshold.
  4. A hit is exact if the query and the reference are the same sequence
     (PAF, --exact-qcov), or if it has high identity and coverage
     (--exact-ident and --exact-ident-qcov). The first exact hit
     with a known lineage gives the full lineage with a confidence of 1.
     It can be disabled with --no-exact.
  5. Queries without any resolvable hits are reported as "Unknown".

Output format:
  Tab-delimited format with 4 columns, in the order of queries in input:

    Query              Query ID
    Lineage            Lineage of "rank:name" entries, separated by -S/--separator
    Taxonomic Level    The deepest rank assigned, or "root"
    Confidence         Confidence score, [0, 1]

Performance notes:
  1. Alignment files are parsed in parallel, and the number of
     lines proceeded by a thread can be set by the flag --line-chunk-size.
  2. Queries are classified in parallel with -j/--threads workers,
     and the output is the same for any number of threads.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq2taxid := getTaxonomyFiles(cmd)

		format := strings.ToLower(getFlagString(cmd, "format"))
		schemaFile := expandPath(getFlagString(cmd, "schema"))

		outFile := getFlagString(cmd, "out-file")
		statsFile := getFlagString(cmd, "stats-file")

		minQcov := getFlagProportion(cmd, "min-qcov")
		minIdent := getFlagProportion(cmd, "min-ident")
		tolerance := getFlagProportion(cmd, "tolerance")
		minShare := getFlagProportion(cmd, "min-share")

		exactRule := evidence.ExactRule{
			QCov:      getFlagProportion(cmd, "exact-qcov"),
			Ident:     getFlagProportion(cmd, "exact-ident"),
			IdentQCov: getFlagProportion(cmd, "exact-ident-qcov"),
		}
		noExact := getFlagBool(cmd, "no-exact")

		chunkSize := getFlagPositiveInt(cmd, "line-chunk-size")

		// ---------------------------------------------------------------
		// log file

		var fhLog *os.File
		if opt.Log2File {
			if !isStdout(outFile) {
				ro, err := filepath.Abs(outFile)
				if err != nil {
					checkError(fmt.Errorf("failed to check output file: %s", err))
				}
				rl, err := filepath.Abs(opt.LogFile)
				if err != nil {
					checkError(fmt.Errorf("failed to check log file: %s", err))
				}
				if ro == rl {
					checkError(fmt.Errorf("output file and log file should not be the same: %s", outFile))
				}
			}
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}

		outputLog := opt.Verbose || opt.Log2File

		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ---------------------------------------------------------------
		// input files

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		if outputLog {
			if len(files) == 1 && isStdin(files[0]) {
				log.Info("no files given, reading from stdin")
			} else {
				log.Infof("%d input file(s) given", len(files))
			}
		}

		var schema *evidence.Schema
		var err error
		if schemaFile != "" {
			schema, err = evidence.LoadSchemaFile(schemaFile)
		} else {
			schema, err = evidence.GetSchema(format)
		}
		checkError(err)

		if outputLog {
			log.Infof("-------------------- [main parameters] --------------------")
			log.Infof("alignment format: %s", schema.ID())
			log.Infof("minimum query coverage: %.2f, minimum identity: %.2f", minQcov, minIdent)
			if noExact {
				log.Infof("exact-match shortcut: disabled")
			} else if schema.IdentityBearing() {
				log.Infof("exact match: identity >= %.2f and coverage >= %.2f", exactRule.Ident, exactRule.IdentQCov)
			} else {
				log.Infof("exact match: same name and coverage >= %.2f", exactRule.QCov)
			}
			if tolerance > 0 {
				log.Infof("score tolerance of hits: %.2f", tolerance)
			}
			if minShare > 0 {
				log.Infof("minimum share of a chosen name: %.2f", minShare)
			}
			log.Infof("-------------------- [main parameters] --------------------")
		}

		// ---------------------------------------------------------------
		// taxonomy

		for _, file := range seq2taxid.IDTables {
			checkFileExists(file)
		}
		for _, file := range seq2taxid.TaxidMaps {
			checkFileExists(file)
		}
		if seq2taxid.Hierarchy != "" {
			checkFileExists(seq2taxid.Hierarchy)
		}

		timeStart1 := time.Now()
		tables := loadTables(opt, seq2taxid)
		if outputLog {
			log.Infof("taxonomy data loaded in %s", time.Since(timeStart1))
		}

		// ---------------------------------------------------------------
		// alignments

		if outputLog {
			log.Infof("loading alignments ...")
		}
		timeStart1 = time.Now()

		loader, err := evidence.NewLoader(evidence.Options{
			Schema:    schema,
			MinQCov:   minQcov,
			MinIdent:  minIdent,
			Exact:     exactRule,
			Threads:   opt.NumCPUs,
			ChunkSize: chunkSize,
		})
		checkError(err)

		ev, err := loader.LoadFiles(files)
		checkError(err)

		if outputLog {
			st := ev.Stats
			log.Infof("  %s lines parsed in %s: %s hits accepted, %s filtered, %s malformed",
				humanize.Comma(int64(st.Lines)), time.Since(timeStart1),
				humanize.Comma(int64(st.Records)), humanize.Comma(int64(st.Filtered)),
				humanize.Comma(int64(st.Malformed)))
			log.Infof("  %s queries with %s distinct references",
				humanize.Comma(int64(len(ev.Queries))), humanize.Comma(int64(ev.Abundance.Len())))
		}
		if ev.Stats.Malformed > 0 {
			log.Warningf("%s malformed line(s) skipped", humanize.Comma(int64(ev.Stats.Malformed)))
		}

		// ---------------------------------------------------------------
		// classification

		engine := lca.NewEngine(tables, ev.Abundance, lca.Options{
			Separator: seq2taxid.Separator,
			NoExact:   noExact,
			Tolerance: tolerance,
			MinShare:  minShare,
		})
		dispatcher := lca.NewDispatcher(engine, opt.NumCPUs)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var pbs *mpb.Progress
		var bar *mpb.Bar
		var chDuration chan time.Duration
		var doneDuration chan int
		if opt.Verbose && len(ev.Queries) > 0 {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(int64(len(ev.Queries)),
				mpb.BarStyle("[=>-]<+"),
				mpb.PrependDecorators(
					decor.Name("classified queries: ", decor.WC{W: len("classified queries: "), C: decor.DidentRight}),
					decor.Name("", decor.WCSyncSpaceR),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
					decor.EwmaETA(decor.ET_STYLE_GO, 60),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)

			chDuration = make(chan time.Duration, opt.NumCPUs)
			doneDuration = make(chan int)
			go func() {
				for t := range chDuration {
					bar.Increment()
					bar.DecoratorEwmaUpdate(t)
				}
				doneDuration <- 1
			}()
			dispatcher.OnDone = func(t time.Duration) {
				chDuration <- t
			}
		}

		timeStart1 = time.Now()
		results := dispatcher.Run(ctx, ev.Queries)

		if pbs != nil {
			close(chDuration)
			<-doneDuration
			if ctx.Err() != nil {
				bar.Abort(false)
			}
			pbs.Wait()
		}

		if ctx.Err() != nil {
			log.Warningf("interrupted, queries not classified yet are reported as unclassified")
		}
		if outputLog {
			log.Infof("%s queries classified in %s", humanize.Comma(int64(len(results))), time.Since(timeStart1))
		}
		if n := engine.Unresolved(); n > 0 {
			log.Warningf("%s hit(s) with unresolvable references ignored", humanize.Comma(n))
		}
		if n := dispatcher.Failed(); n > 0 {
			log.Warningf("%s queries failed and were reported as unclassified", humanize.Comma(n))
		}

		// ---------------------------------------------------------------
		// output

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		checkError(writeResults(outfh, results))
		closeOutStream(outfh, gw, w)

		summary := summarizeResults(results)
		if outputLog {
			log.Infof("%s / %s (%.2f%%) queries classified, %s by exact matches",
				humanize.Comma(int64(summary.Classified)), humanize.Comma(int64(summary.Queries)),
				percentage(summary.Classified, summary.Queries), humanize.Comma(int64(summary.Exact)))
		}

		if statsFile != "" || opt.Verbose {
			data, err := summary.Table()
			checkError(err)
			if statsFile != "" {
				sfh, sgw, sw, err := outStream(statsFile, strings.HasSuffix(statsFile, ".gz"), opt.CompressionLevel)
				checkError(err)
				sfh.Write(data)
				closeOutStream(sfh, sgw, sw)
			} else {
				os.Stderr.Write(data)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(classifyCmd)

	addTaxonomyFlags(classifyCmd)

	classifyCmd.Flags().StringP("format", "F", "paf",
		formatFlagUsage(`Alignment format: paf, lexicmap. A version can be given like "lexicmap/v1".`))
	classifyCmd.Flags().StringP("schema", "", "",
		formatFlagUsage(`YAML file describing the columns of a tabular alignment format. It overrides -F/--format.`))
	classifyCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports and recommends a ".gz" suffix ("-" for stdout).`))
	classifyCmd.Flags().StringP("stats-file", "", "",
		formatFlagUsage(`Write the summary of taxonomic levels to a file instead of stderr.`))

	classifyCmd.Flags().Float64P("min-qcov", "", 0,
		formatFlagUsage(`Minimum query coverage of a hit, range: [0, 1].`))
	classifyCmd.Flags().Float64P("min-ident", "", 0,
		formatFlagUsage(`Minimum identity of a hit, range: [0, 1].`))
	classifyCmd.Flags().Float64P("tolerance", "", 0,
		formatFlagUsage(`Only keep hits with a score (coverage x identity) >= best * (1 - tolerance). 0 for keeping all hits.`))
	classifyCmd.Flags().Float64P("min-share", "", 0,
		formatFlagUsage(`Stop at the first rank where the chosen name has a share of weights below this value, range: [0, 1].`))

	classifyCmd.Flags().Float64P("exact-qcov", "", evidence.DefaultExactRule.QCov,
		formatFlagUsage(`Minimum query coverage of an exact hit whose query and reference have the same name.`))
	classifyCmd.Flags().Float64P("exact-ident", "", evidence.DefaultExactRule.Ident,
		formatFlagUsage(`Minimum identity of an exact hit, for formats with an identity column.`))
	classifyCmd.Flags().Float64P("exact-ident-qcov", "", evidence.DefaultExactRule.IdentQCov,
		formatFlagUsage(`Minimum query coverage of an exact hit, for formats with an identity column.`))
	classifyCmd.Flags().BoolP("no-exact", "", false,
		formatFlagUsage(`Do not use exact hits as a shortcut.`))

	classifyCmd.Flags().IntP("line-chunk-size", "", 5000,
		formatFlagUsage(`Number of lines to process for each thread, and 4 threads is fast enough. Type "alnlca classify -h" for details.`))

	classifyCmd.SetUsageTemplate(usageTemplate("[alignment files]"))
}
