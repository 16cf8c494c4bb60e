// Command sender connects to a relay and posts every line read from stdin.
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

const usage = "connect to a relay as a sender\nusage: sender [-nick NAME] HOST [PORT]"

func main() {
	addr, nick, err := parseArgs(os.Args[1:], os.Stderr)
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

	logger := log.New(os.Stderr, "", 0)
	if err := send(conn, os.Stdin, nick, logger); err != nil {
		log.Fatalf("sender: %v", err)
	}
}

// parseArgs returns the relay address and the optional nickname.
func parseArgs(args []string, output io.Writer) (string, string, error) {
	fs := flag.NewFlagSet("sender", flag.ContinueOnError)
	fs.SetOutput(output)
	nick := fs.String("nick", "", "Nickname to register before sending")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}

	port := config.DefaultPort
	switch fs.NArg() {
	case 1:
	case 2:
		port = fs.Arg(1)
	default:
		return "", "", fmt.Errorf("expected HOST [PORT], got %d arguments", fs.NArg())
	}
	return net.JoinHostPort(fs.Arg(0), port), *nick, nil
}

// send registers nick when given, then forwards in line by line until EOF.
func send(w io.Writer, in io.Reader, nick string, logger message.Logger) error {
	if nick != "" {
		if err := message.New("/nick " + nick + "\n").Send(w); err != nil {
			return err
		}
	}

	r := bufio.NewReader(in)
	for {
		m, err := message.Receive(r, message.WithLogger(logger))
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		m.StripNewline()
		m.EnsureNewline()
		if err := m.Send(w); err != nil {
			return err
		}
	}
}
