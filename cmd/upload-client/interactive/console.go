// Package interactive provides the interactive console for upload-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/TomasCostaK/secure-comms/pkg/client"
	"github.com/TomasCostaK/secure-comms/pkg/discovery"
	"github.com/TomasCostaK/secure-comms/pkg/negotiation"
)

// discoverTimeout bounds the discover command.
const discoverTimeout = 3 * time.Second

// Console drives one upload connection at a time from typed commands.
type Console struct {
	rl     *readline.Instance
	out    io.Writer
	config client.Config
	addr   string

	client *client.Client
	suite  string
	opened string
	sent   int64
}

// New creates a console. addr is the default for connect.
func New(config client.Config, addr string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "upload> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout(), config: config, addr: addr}, nil
}

// newConsole is used by tests to run commands without a terminal.
func newConsole(config client.Config, addr string, out io.Writer) *Console {
	return &Console{out: out, config: config, addr: addr}
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// SetClientConfig replaces the configuration used by later connects.
func (c *Console) SetClientConfig(config client.Config) {
	c.config = config
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.disconnect()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(ctx, line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "connect", "c":
		err = c.cmdConnect(ctx, args)
	case "discover":
		err = c.cmdDiscover(ctx)
	case "negotiate", "n":
		err = c.cmdNegotiate(args)
	case "open", "o":
		err = c.cmdOpen(args)
	case "send", "s":
		err = c.cmdSend(args)
	case "upload", "u":
		err = c.cmdUpload(ctx, args)
	case "close":
		err = c.cmdClose()
	case "status":
		c.cmdStatus()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Upload Client Commands:
  Connection:
    connect [addr]                  - Connect and run the key exchange
    discover                        - Browse for upload servers
    negotiate [ciphers modes digests] - Offer comma-separated lists
    status                          - Show connection status

  Transfer:
    upload <file> [remote-name]     - Open, send and close in one go
    open <remote-name>              - Open a remote file
    send <file>                     - Send a local file's content
    close                           - Finish the session

  General:
    help                            - Show this help
    quit                            - Exit`)
}

var errNotConnected = errors.New("not connected (use 'connect')")

func (c *Console) cmdConnect(ctx context.Context, args []string) error {
	if c.client != nil {
		return errors.New("already connected (use 'close' first)")
	}
	addr := c.addr
	if len(args) > 0 {
		addr = args[0]
	}

	cl, err := client.Dial(ctx, addr, c.config)
	if err != nil {
		return err
	}
	c.client = cl
	c.addr = addr
	c.suite = ""
	c.opened = ""
	c.sent = 0
	fmt.Fprintf(c.out, "Connected to %s, key %x...\n", addr, cl.Key()[:4])
	return nil
}

func (c *Console) cmdDiscover(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	found, err := browser.Browse(ctx)
	if err != nil {
		return err
	}

	count := 0
	for svc := range found {
		addr, err := svc.Address()
		if err != nil {
			continue
		}
		count++
		fmt.Fprintf(c.out, "  %-30s %s (group %s)\n", svc.InstanceName, addr, svc.Group)
		if count == 1 {
			c.addr = addr
		}
	}
	if count == 0 {
		fmt.Fprintln(c.out, "No upload servers found")
	}
	return nil
}

func (c *Console) cmdNegotiate(args []string) error {
	if c.client == nil {
		return errNotConnected
	}
	offer := negotiation.Offer{
		Ciphers: negotiation.CipherPreference,
		Modes:   negotiation.ModePreference,
		Digests: negotiation.DigestPreference,
	}
	if len(args) > 0 {
		if len(args) != 3 {
			return errors.New("usage: negotiate <ciphers> <modes> <digests>")
		}
		offer = negotiation.Offer{
			Ciphers: strings.Split(args[0], ","),
			Modes:   strings.Split(args[1], ","),
			Digests: strings.Split(args[2], ","),
		}
	}

	suite, err := c.client.Negotiate(offer)
	if err != nil {
		c.client = nil
		return err
	}
	c.suite = suite.String()
	fmt.Fprintf(c.out, "Suite: %s\n", c.suite)
	return nil
}

func (c *Console) cmdOpen(args []string) error {
	if c.client == nil {
		return errNotConnected
	}
	if len(args) != 1 {
		return errors.New("usage: open <remote-name>")
	}
	if err := c.client.Open(args[0]); err != nil {
		c.client = nil
		return err
	}
	c.opened = args[0]
	fmt.Fprintf(c.out, "Opened %s\n", args[0])
	return nil
}

func (c *Console) cmdSend(args []string) error {
	if c.client == nil {
		return errNotConnected
	}
	if len(args) != 1 {
		return errors.New("usage: send <file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(c.client, f)
	c.sent += n
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Sent %d bytes\n", n)
	return nil
}

func (c *Console) cmdUpload(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: upload <file> [remote-name]")
	}
	name := filepath.Base(args[0])
	if len(args) == 2 {
		name = args[1]
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	if c.client == nil {
		if err := c.cmdConnect(ctx, nil); err != nil {
			return err
		}
	}
	n, err := c.client.Upload(name, f)
	c.client = nil
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Uploaded %s as %s (%d bytes)\n", args[0], name, n)
	return nil
}

func (c *Console) cmdClose() error {
	if c.client == nil {
		return errNotConnected
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Closed (%d bytes sent)\n", c.sent)
	return nil
}

func (c *Console) cmdStatus() {
	if c.client == nil {
		fmt.Fprintf(c.out, "Not connected (default server %s)\n", c.addr)
		return
	}
	fmt.Fprintf(c.out, "Connected to %s\n", c.addr)
	if c.suite != "" {
		fmt.Fprintf(c.out, "  Suite: %s\n", c.suite)
	}
	if c.opened != "" {
		fmt.Fprintf(c.out, "  File:  %s (%d bytes sent)\n", c.opened, c.sent)
	}
}

func (c *Console) disconnect() {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
