//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run tools/checksum.go <address>")
		os.Exit(1)
	}

	address := os.Args[1]
	if !common.IsHexAddress(address) {
		fmt.Printf("Error: %q is not a hex address\n", address)
		os.Exit(1)
	}

	// EIP-55 mixed-case form
	fmt.Println(common.HexToAddress(address).Hex())
}
