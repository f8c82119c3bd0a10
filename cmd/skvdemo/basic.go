package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelsi-vault/skv/pkg/store"
)

func runBasicDemo(dataDir string) error {
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "skvdemo-basic")
	}
	defer os.RemoveAll(dataDir)

	fmt.Println("=== skv basic demo ===")
	fmt.Printf("data directory: %s\n\n", dataDir)

	fmt.Println("1. opening store...")
	s, err := store.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer s.Close()

	testData := map[string]string{
		"user:1001": "Alice",
		"user:1002": "Bob",
		"user:1003": "Charlie",
	}

	fmt.Println("2. putting data...")
	for k, v := range testData {
		if _, err := s.Put([]byte(k), []byte(v)); err != nil {
			return fmt.Errorf("put %s: %w", k, err)
		}
		fmt.Printf("  put %s = %s\n", k, v)
	}

	fmt.Println("\n3. getting data...")
	for k, want := range testData {
		val, err := s.Get([]byte(k))
		if err != nil {
			return fmt.Errorf("get %s: %w", k, err)
		}
		if string(val) != want {
			return fmt.Errorf("get %s: expected %s, got %s", k, want, val)
		}
		fmt.Printf("  get %s = %s\n", k, val)
	}

	fmt.Println("\n4. deleting user:1003...")
	if _, err := s.Delete([]byte("user:1003")); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if _, err := s.Get([]byte("user:1003")); err != store.ErrNotFound {
		return fmt.Errorf("expected user:1003 to be absent after delete")
	}
	fmt.Println("  deleted, confirmed absent")

	fmt.Println("\n=== basic demo completed ===")
	return nil
}
