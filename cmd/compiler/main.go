// Command compiler is the toolchain's front end: it runs a source file
// through the preprocessor, lexer, parser, and codegen, then writes the
// resulting program image.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mec/pkg/compiler"
	"mec/pkg/config"
)

const (
	exitOK             = 0
	exitInvalidUsage   = 1
	exitFileNotFound   = 2
	exitInvalidData    = 3
	exitFileWriteError = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("compiler", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose diagnostic output")
	embedName := fs.Bool("f", false, "embed the source filename as the binary's first string")
	nativeDeclPath := fs.String("n", "", "native function declaration file")
	configPath := fs.String("c", "", "optional mecc.toml defaults file")

	var usageErr error
	fs.Usage = func() {}
	if err := fs.Parse(args); err != nil {
		usageErr = err
	}
	rest := fs.Args()
	if usageErr != nil || len(rest) < 1 || len(rest) > 2 {
		fmt.Fprintln(os.Stderr, "usage: compiler [-v] [-f] [-n declarations] [-c config] <input> [output]")
		return exitInvalidUsage
	}

	var cfg config.Compiler
	if *configPath != "" {
		var err error
		cfg, err = config.LoadCompiler(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "compiler:", err)
			return exitFileNotFound
		}
		explicit := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if !explicit["v"] {
			*verbose = cfg.Verbose
		}
		if !explicit["f"] {
			*embedName = cfg.EmbedName
		}
		if !explicit["n"] && cfg.NativeDecls != "" {
			*nativeDeclPath = cfg.NativeDecls
		}
	}

	inputPath := rest[0]
	outputPath := defaultOutputPath(inputPath)
	if len(rest) == 2 {
		outputPath = rest[1]
	}

	fullInputPath, err := filepath.Abs(inputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "compiler:", err)
		return exitFileNotFound
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "compiler: reading %s (in %s)\n", fullInputPath, filepath.Dir(fullInputPath))
	}

	src, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "compiler:", err)
		return exitFileNotFound
	}
	if len(strings.TrimSpace(string(src))) == 0 {
		fmt.Fprintln(os.Stderr, "compiler: empty source file")
		return exitInvalidData
	}

	langMajor, langMinor := cfg.LangMajor, cfg.LangMinor
	if langMajor == 0 && langMinor == 0 {
		langMajor = 1
	}
	opts := compiler.Options{
		Binary: compiler.BinaryOptions{
			LangMajor: langMajor,
			LangMinor: langMinor,
			BuildDay:  compiler.DaysSince2000(time.Now().Unix()),
			BuildTime: compiler.HalfSecondsSinceMidnight(time.Now().Unix()),
		},
	}
	if *embedName {
		opts.EmbedFileName = filepath.Base(fullInputPath)
	}
	if *nativeDeclPath != "" {
		declSrc, err := os.ReadFile(*nativeDeclPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "compiler:", err)
			return exitFileNotFound
		}
		declDiag := compiler.NewDiagnostics(string(declSrc))
		opts.NativeDecls = compiler.ParseNativeDecls(string(declSrc), declDiag)
		if *verbose {
			for _, d := range declDiag.All() {
				fmt.Fprintln(os.Stderr, declDiag.Format(d))
			}
		}
		if declDiag.HasErrors() {
			return exitInvalidData
		}
	}

	result := compiler.Compile(string(src), opts)

	if *verbose {
		for _, d := range result.Diagnostics.All() {
			fmt.Fprintln(os.Stderr, result.Diagnostics.Format(d))
		}
	}

	if result.Diagnostics.HasErrors() {
		return exitInvalidData
	}

	if err := os.WriteFile(outputPath, result.Binary, 0644); err != nil {
		fmt.Fprintln(os.Stderr, "compiler:", err)
		return exitFileWriteError
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "compiler: wrote %d bytes to %s\n", len(result.Binary), outputPath)
	}
	return exitOK
}

func defaultOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + ".mecb"
}
