// Command lan-mouse-ctl is a thin CLI frontend: it issues exactly one
// IPC command against a running lan-mouse daemon and exits (spec.md
// §6's CLI surface — not a shell).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/feschber/lan-mouse/internal/ipc"
)

func main() {
	addr := flag.String("ipc", ipc.DefaultAddr, "daemon's IPC address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: lan-mouse-ctl [-ipc addr] <connect|list|activate|deactivate|remove|reassign> [args...]")
		os.Exit(1)
	}

	client := ipc.NewClient(*addr)
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "lan-mouse-ctl: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	req, err := buildRequest(args[0], args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "lan-mouse-ctl: %v\n", err)
		os.Exit(1)
	}

	resp, err := client.Command(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lan-mouse-ctl: %v\n", err)
		os.Exit(3)
	}

	printResponse(args[0], resp)
}

func buildRequest(verb string, rest []string) (ipc.CommandRequest, error) {
	switch verb {
	case "connect":
		fs := flag.NewFlagSet("connect", flag.ContinueOnError)
		hostname := fs.String("hostname", "", "peer hostname")
		ips := fs.String("ip", "", "comma-separated literal IPs")
		port := fs.Int("port", 4242, "peer port")
		position := fs.String("position", "", "left|right|top|bottom")
		if err := fs.Parse(rest); err != nil {
			return ipc.CommandRequest{}, err
		}
		req := ipc.CommandRequest{Verb: "connect", Hostname: *hostname, Port: *port, Position: *position}
		if *ips != "" {
			req.IPs = splitCSV(*ips)
		}
		return req, nil
	case "list":
		return ipc.CommandRequest{Verb: "list"}, nil
	case "activate", "deactivate", "remove":
		if len(rest) != 1 {
			return ipc.CommandRequest{}, fmt.Errorf("%s requires exactly one handle argument", verb)
		}
		var h uint32
		if _, err := fmt.Sscanf(rest[0], "%d", &h); err != nil {
			return ipc.CommandRequest{}, fmt.Errorf("invalid handle %q", rest[0])
		}
		return ipc.CommandRequest{Verb: verb, Handle: h}, nil
	case "reassign":
		if len(rest) != 2 {
			return ipc.CommandRequest{}, fmt.Errorf("reassign requires a handle and a position (left|right|top|bottom)")
		}
		var h uint32
		if _, err := fmt.Sscanf(rest[0], "%d", &h); err != nil {
			return ipc.CommandRequest{}, fmt.Errorf("invalid handle %q", rest[0])
		}
		return ipc.CommandRequest{Verb: "reassign", Handle: h, Position: rest[1]}, nil
	default:
		return ipc.CommandRequest{}, fmt.Errorf("unknown verb %q", verb)
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func printResponse(verb string, resp ipc.CommandResponse) {
	switch verb {
	case "list":
		for _, p := range resp.Peers {
			fmt.Printf("%d\t%s\t%s\tactive=%v\talive=%v\n", p.Handle, p.Hostname, p.Position, p.Active, p.Alive)
		}
	case "connect":
		fmt.Printf("added peer %d\n", resp.Handle)
	default:
		fmt.Println("ok")
	}
}
