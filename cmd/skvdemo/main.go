// skvdemo exercises the storage core end-to-end: basic put/get/delete,
// range scans, compaction and crash recovery, the way the teacher's
// five separate demo mains once did — except as one dispatcher binary,
// since five files each declaring func main() in the same package
// can't build.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: skvdemo <basic|compaction|recovery|range> [data-dir]")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	dataDir := ""
	if len(args) > 1 {
		dataDir = args[1]
	}

	var err error
	switch args[0] {
	case "basic":
		err = runBasicDemo(dataDir)
	case "compaction":
		err = runCompactionDemo(dataDir)
	case "recovery":
		err = runRecoveryDemo(dataDir)
	case "range":
		err = runRangeDemo(dataDir)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "skvdemo: %v\n", err)
		os.Exit(1)
	}
}
