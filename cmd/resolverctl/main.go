// Command resolverctl is a small client for the Resolver Service's
// Order Intake HTTP surface (spec.md §6.1): submit a new swap or look
// up an existing one's status, grounded on the plain flag-driven CLI
// shape the example pack's tooling scripts use rather than a heavier
// framework like cobra.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "submit":
		runSubmit(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: resolverctl submit -base <url> -request <file.json>")
	fmt.Fprintln(os.Stderr, "       resolverctl status -base <url> -order-hash <0x...>")
}

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	base := fs.String("base", "http://localhost:8090", "resolver base URL")
	reqPath := fs.String("request", "", "path to a JSON order-request file")
	fs.Parse(args)

	if *reqPath == "" {
		fmt.Fprintln(os.Stderr, "submit: -request is required")
		os.Exit(2)
	}

	body, err := os.ReadFile(*reqPath)
	if err != nil {
		fail("read request file", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(*base+"/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		fail("submit order", err)
	}
	defer resp.Body.Close()

	printResponse(resp)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	base := fs.String("base", "http://localhost:8090", "resolver base URL")
	orderHash := fs.String("order-hash", "", "order hash to look up")
	fs.Parse(args)

	if *orderHash == "" {
		fmt.Fprintln(os.Stderr, "status: -order-hash is required")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(*base + "/orders/" + *orderHash)
	if err != nil {
		fail("fetch status", err)
	}
	defer resp.Body.Close()

	printResponse(resp)
}

func printResponse(resp *http.Response) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		fail("read response", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		fmt.Println(buf.String())
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func fail(action string, err error) {
	fmt.Fprintf(os.Stderr, "resolverctl: %s: %v\n", action, err)
	os.Exit(1)
}
