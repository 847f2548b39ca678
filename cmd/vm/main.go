// Command vm loads a compiled program image and runs it to completion
// against the reference native-function library.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"mec/pkg/config"
	"mec/pkg/natives"
	"mec/pkg/vfs"
	"mec/pkg/vm"
)

const (
	exitOK           = 0
	exitInvalidUsage = 1
	exitFileNotFound = 2
	exitRuntimeError = 3
)

const defaultStackWords = 4096

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vm", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "print VM status on exit, plus the disk index when -disk is set")
	diskDir := fs.String("disk", "", "host directory backing the VFS natives, empty to start unpersisted")
	configPath := fs.String("c", "", "optional mecvm.toml defaults file")
	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: vm [-v] [-disk dir] [-c config] <binary>")
		return exitInvalidUsage
	}

	var cfg config.VM
	if *configPath != "" {
		var err error
		cfg, err = config.LoadVM(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "vm:", err)
			return exitFileNotFound
		}
		explicit := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if !explicit["v"] {
			*verbose = cfg.Verbose
		}
		if !explicit["disk"] && cfg.DiskDir != "" {
			*diskDir = cfg.DiskDir
		}
	}

	stackWords := cfg.StackWords
	if stackWords == 0 {
		stackWords = defaultStackWords
	}

	image, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "vm:", err)
		return exitFileNotFound
	}

	program, err := vm.Decode(image)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vm:", err)
		return exitRuntimeError
	}

	disk := vfs.NewVirtualDisk()
	if cfg.DiskQuotaBytes > 0 {
		disk = vfs.NewVirtualDiskWithQuota(cfg.DiskQuotaBytes)
	}
	if *diskDir != "" {
		if err := disk.LoadFrom(*diskDir); err != nil {
			fmt.Fprintln(os.Stderr, "vm:", err)
			return exitRuntimeError
		}
	}

	sysParam := &natives.SysParam{Out: os.Stdout, Disk: disk}
	m := vm.New(program, stackWords, natives.Resolver, sysParam)
	status := m.Run()

	if *diskDir != "" {
		if err := disk.PersistTo(*diskDir); err != nil {
			fmt.Fprintln(os.Stderr, "vm:", err)
		}
		indexPath := filepath.Join(*diskDir, ".index.cbor")
		if err := disk.SaveIndex(indexPath); err != nil {
			fmt.Fprintln(os.Stderr, "vm:", err)
		}
		if *verbose {
			if entries, err := vfs.LoadIndex(indexPath); err == nil {
				fmt.Fprintf(os.Stderr, "vm: disk index (%d entries):\n", len(entries))
				for _, e := range entries {
					fmt.Fprintf(os.Stderr, "  %-14s %6d bytes  modified %s\n", e.Name, e.Size, e.Modified.Format("2006-01-02T15:04:05"))
				}
			}
		}
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "vm: status=%s\n", status)
	}

	if status != vm.StatusEnd {
		fmt.Fprintf(os.Stderr, "vm: halted abnormally: %s\n", status)
		return exitRuntimeError
	}
	return exitOK
}
