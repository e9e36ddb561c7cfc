//go:build ignore

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run tools/selector.go <signature>...")
		fmt.Println("Example: go run tools/selector.go 'incCall(address)'")
		os.Exit(1)
	}

	for _, sig := range os.Args[1:] {
		sig = strings.ReplaceAll(sig, " ", "")
		selector := crypto.Keccak256([]byte(sig))[:4]
		fmt.Printf("%s  %s\n", hexutil.Encode(selector), sig)
	}
}
