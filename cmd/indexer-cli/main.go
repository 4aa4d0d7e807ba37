// indexer-cli is a command-line client for querying an indexerd
// instance's line-delimited JSON-RPC listener.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tapyrus-index/utxoindexd/internal/rpcclient"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	addr := "127.0.0.1:50001"
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			addr = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			addr = args[0][len("--rpc="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client, err := rpcclient.New(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	cmd := args[0]
	cmdArgs := args[1:]
	if err := dispatchCmd(client, cmd, cmdArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatchCmd(client *rpcclient.Client, cmd string, args []string) error {
	switch cmd {
	case "tip":
		return cmdTip(client)
	case "header":
		return cmdHeader(client, args)
	case "tx":
		return cmdTx(client, args)
	case "broadcast":
		return cmdBroadcast(client, args)
	case "balance":
		return cmdBalance(client, args)
	case "history":
		return cmdHistory(client, args)
	case "listunspent":
		return cmdListUnspent(client, args)
	case "feeestimate":
		return cmdFeeEstimate(client, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: indexer-cli [--rpc host:port] <command> [args]

Commands:
  tip                       Show the current chain tip height and header
  header <height>           Show the block header at height
  tx <txid>                 Show a transaction's raw hex
  broadcast <rawtx-hex>     Submit a raw transaction to the daemon
  balance <scripthash>      Show confirmed/unconfirmed balance for a scripthash
  history <scripthash>      Show confirmed/unconfirmed transaction history
  listunspent <scripthash>  List unspent outputs for a scripthash
  feeestimate <blocks>      Estimate a fee rate for confirmation within N blocks
`)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdTip(client *rpcclient.Client) error {
	var header map[string]interface{}
	if err := client.Call("blockchain.headers.subscribe", nil, &header); err != nil {
		return err
	}
	return printJSON(header)
}

func cmdHeader(client *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: header <height>")
	}
	height, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid height %q: %w", args[0], err)
	}
	var result string
	if err := client.Call("blockchain.block.header", []interface{}{height}, &result); err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

func cmdTx(client *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tx <txid>")
	}
	var result string
	if err := client.Call("blockchain.transaction.get", []interface{}{args[0]}, &result); err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

func cmdBroadcast(client *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: broadcast <rawtx-hex>")
	}
	var txid string
	if err := client.Call("blockchain.transaction.broadcast", []interface{}{args[0]}, &txid); err != nil {
		return err
	}
	fmt.Println(txid)
	return nil
}

func cmdBalance(client *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: balance <scripthash>")
	}
	var result []map[string]interface{}
	if err := client.Call("blockchain.scripthash.get_balance", []interface{}{args[0]}, &result); err != nil {
		return err
	}
	return printJSON(result)
}

func cmdHistory(client *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: history <scripthash>")
	}
	var result []map[string]interface{}
	if err := client.Call("blockchain.scripthash.get_history", []interface{}{args[0]}, &result); err != nil {
		return err
	}
	return printJSON(result)
}

func cmdListUnspent(client *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: listunspent <scripthash>")
	}
	var result []map[string]interface{}
	if err := client.Call("blockchain.scripthash.listunspent", []interface{}{args[0]}, &result); err != nil {
		return err
	}
	return printJSON(result)
}

func cmdFeeEstimate(client *rpcclient.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: feeestimate <blocks>")
	}
	blocks, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid blocks %q: %w", args[0], err)
	}
	var feerate float64
	if err := client.Call("blockchain.estimatefee", []interface{}{blocks}, &feerate); err != nil {
		return err
	}
	fmt.Println(feerate)
	return nil
}
