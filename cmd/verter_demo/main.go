package main

import (
	"bytes"
	"flag"
	"log"

	"go.uber.org/zap"

	storageengine "github.com/cipollino-studio/verter/core/storage_engine"
	"github.com/cipollino-studio/verter/pkg/logger"
)

// A small end-to-end walkthrough: write the root chain and one allocated
// chain, reopen the file, and verify both survived.
func main() {
	path := flag.String("file", "demo.verter", "path of the verter file")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	zlogger, err := logger.New(logger.Config{Level: *level, Format: "console"})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zlogger.Sync()

	opts := storageengine.DefaultOptions()
	opts.Logger = zlogger

	file, err := storageengine.Open(*path, opts)
	if err != nil {
		zlogger.Fatal("open failed", zap.Error(err))
	}

	rootData := []byte("Hello, World!")
	if err := file.WriteRoot(rootData); err != nil {
		zlogger.Fatal("write_root failed", zap.Error(err))
	}

	chainData := []byte("What an unexpectedly lovely day!")
	ptr, err := file.Alloc()
	if err != nil {
		zlogger.Fatal("alloc failed", zap.Error(err))
	}
	if err := file.Write(ptr, chainData); err != nil {
		zlogger.Fatal("write failed", zap.Error(err))
	}

	if err := file.Close(); err != nil {
		zlogger.Fatal("close failed", zap.Error(err))
	}

	// Reopen and verify everything came back.
	file, err = storageengine.Open(*path, opts)
	if err != nil {
		zlogger.Fatal("reopen failed", zap.Error(err))
	}
	defer file.Close()

	got, err := file.ReadRoot()
	if err != nil {
		zlogger.Fatal("read_root failed", zap.Error(err))
	}
	if !bytes.Equal(got, rootData) {
		zlogger.Fatal("root data mismatch after reopen")
	}

	got, err = file.Read(ptr)
	if err != nil {
		zlogger.Fatal("read failed", zap.Error(err))
	}
	if !bytes.Equal(got, chainData) {
		zlogger.Fatal("chain data mismatch after reopen")
	}

	if err := file.Delete(ptr); err != nil {
		zlogger.Fatal("delete failed", zap.Error(err))
	}

	zlogger.Info("demo complete",
		zap.String("file", *path),
		zap.Uint64("pointer", uint64(ptr)))
}
