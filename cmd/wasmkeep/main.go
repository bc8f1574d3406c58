// wasmkeep runs one confidential WebAssembly workload to completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wasmkeep/wasmkeep/internal/keep"
	"github.com/wasmkeep/wasmkeep/internal/workload"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("CRITICAL PANIC RECOVERED: %v", r)
			time.Sleep(2 * time.Second)
			os.Exit(2)
		}
	}()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s run <workload-dir>\n", os.Args[0])
	}
	flag.Parse()

	if flag.NArg() < 2 || flag.Arg(0) != "run" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Arg(1)); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	log.Printf("[DEBUG] wasmkeep: loading workload from %s", dir)
	pkg, err := workload.Load(dir)
	if err != nil {
		return fmt.Errorf("load workload: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("[WARNING] wasmkeep: signal received; the invocation has no caller-initiated cancellation and will run to completion")
		<-sigCh
		log.Printf("[WARNING] wasmkeep: second signal received, forcing exit")
		os.Exit(130)
	}()

	events := make(chan keep.Event, 64)
	go func() {
		for e := range events {
			log.Printf("[DEBUG] wasmkeep: event %s", e.EventType())
		}
	}()

	k := keep.New(events)
	results, err := k.Execute(context.Background(), pkg)
	close(events)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	log.Printf("[DEBUG] wasmkeep: entry point returned %d result(s)", len(results))
	return nil
}
