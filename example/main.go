// Example hashes or verifies passwords with an Argon2 WebAssembly module.
//
//	example -wasm dist/argon2.wasm -password hunter2 -salt saltsalt
//	example -url https://cdn.example.com/argon2.wasm -verify '$argon2id$v=19$...' -password hunter2
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	argon2wasm "github.com/glihm/go-argon2-wasm"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("example", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		wasmPath = flags.String("wasm", argon2wasm.ModuleFilename, "path to the Argon2 module")
		url      = flags.String("url", "", "download the Argon2 module from this URL instead of -wasm")
		password = flags.String("password", "", "password to hash or verify")
		salt     = flags.String("salt", "somesalt", "salt (at least 8 bytes)")
		iters    = flags.Uint("t", 2, "iterations")
		memory   = flags.Uint("m", 65536, "memory cost in KiB")
		lanes    = flags.Uint("p", 1, "parallelism")
		length   = flags.Uint("len", 32, "hash length in bytes")
		typeName = flags.String("type", "argon2id", "argon2d, argon2i or argon2id")
		verify   = flags.String("verify", "", "encoded hash to verify -password against")
		parallel = flags.Int("n", 1, "number of concurrent operations")
		verbose  = flags.Bool("v", false, "enable debug logging")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		log = l
	}
	defer log.Sync()

	typ, err := argon2wasm.ParseType(*typeName)
	if err != nil {
		return err
	}

	var src argon2wasm.Source
	if *url != "" {
		src = argon2wasm.HTTPSource{URL: *url}
	} else {
		abs, err := filepath.Abs(*wasmPath)
		if err != nil {
			return err
		}
		src = argon2wasm.FileSource{FS: os.DirFS(filepath.Dir(abs)), Path: filepath.Base(abs)}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	h, err := argon2wasm.New(&argon2wasm.Config{Source: src, Logger: log})
	if err != nil {
		return err
	}
	defer h.Close(ctx)

	params := argon2wasm.Parameters{
		Iterations:    uint32(*iters),
		MemoryCostKiB: uint32(*memory),
		Parallelism:   uint32(*lanes),
		HashLength:    uint32(*length),
		Type:          typ,
	}

	once := func() error {
		if *verify != "" {
			return runVerify(ctx, h, stdout, stderr, *verify, *password, typ)
		}
		return runHash(ctx, h, stdout, stderr, *password, *salt, params)
	}

	var g errgroup.Group
	for i := 0; i < max(*parallel, 1); i++ {
		g.Go(once)
	}
	return g.Wait()
}

func runHash(ctx context.Context, h *argon2wasm.Hasher, stdout, stderr io.Writer, password, salt string, params argon2wasm.Parameters) error {
	out := h.Hash(ctx, argon2wasm.Text(password), argon2wasm.Text(salt), params)
	if err := out.AsError(); err != nil {
		return err
	}
	if out.CleanupErr != nil {
		fmt.Fprintf(stderr, "warning: %v\n", out.CleanupErr)
	}

	fmt.Fprintf(stdout, "Hash:    %s\n", hex.EncodeToString(out.RawHash))
	fmt.Fprintf(stdout, "Encoded: %s\n", out.EncodedHash)
	return nil
}

func runVerify(ctx context.Context, h *argon2wasm.Hasher, stdout, stderr io.Writer, encoded, password string, typ argon2wasm.Type) error {
	out := h.Verify(ctx, encoded, argon2wasm.Text(password), typ)
	if out.CleanupErr != nil {
		fmt.Fprintf(stderr, "warning: %v\n", out.CleanupErr)
	}
	switch {
	case out.OK():
		fmt.Fprintln(stdout, "Verified")
		return nil
	case out.Mismatch():
		return fmt.Errorf("password does not match: %s", out.Message)
	default:
		return out.AsError()
	}
}
