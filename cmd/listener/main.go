// Command listener connects to a relay and prints every chat line it receives.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"chatrelay/internal/config"
	"chatrelay/internal/message"
)

const usage = "connect to a relay as a listener\nusage: listener HOST [PORT]"

func main() {
	addr, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("could not connect to %s: %v", addr, err)
	}
	defer conn.Close()

	if err := listen(conn, os.Stdout); err != nil {
		log.Fatalf("listener: %v", err)
	}
	log.Println("relay closed the connection")
}

func parseArgs(args []string, output io.Writer) (string, error) {
	fs := flag.NewFlagSet("listener", flag.ContinueOnError)
	fs.SetOutput(output)
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	port := config.DefaultPort
	switch fs.NArg() {
	case 1:
	case 2:
		port = fs.Arg(1)
	default:
		return "", fmt.Errorf("expected HOST [PORT], got %d arguments", fs.NArg())
	}
	return net.JoinHostPort(fs.Arg(0), port), nil
}

// listen subscribes conn to chat traffic and prints each line until the
// relay hangs up.
func listen(conn io.ReadWriter, out io.Writer) error {
	if err := message.New("/listen\n").Send(conn); err != nil {
		return err
	}

	r := bufio.NewReader(conn)
	for {
		m, err := message.Receive(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		m.StripNewline()
		fmt.Fprintf(out, "Received: %s\n", m)
	}
}
