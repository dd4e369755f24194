package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/nexus/internal/client"
)

var dialTimeout time.Duration

var connectCmd = &cobra.Command{
	Use:   "connect <addr>",
	Short: "Open an interactive session with a server",
	Long: `Connect to a server and relay standard input to it line by line, printing
everything the server sends. Type "quit" or close standard input to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().DurationVar(&dialTimeout, "timeout", 5*time.Second, "Connection timeout")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	c, err := client.Dial(dialCtx, args[0])
	cancelDial()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", green("connected to"), args[0])

	g, gctx := errgroup.WithContext(ctx)
	sessionCtx, endSession := context.WithCancel(gctx)
	defer endSession()

	// closing the connection unblocks the receiver on interrupt
	go func() {
		<-sessionCtx.Done()
		_ = c.Close()
	}()

	g.Go(func() error {
		defer endSession()
		return receive(out, c)
	})

	lines := readLines(cmd.InOrStdin())
	g.Go(func() error {
		for {
			select {
			case <-sessionCtx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return c.SendLine("quit")
				}
				if err := c.SendLine(line); err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, client.ErrClosed) {
		err = nil
	}
	fmt.Fprintln(out, faint("disconnected"))
	return err
}

func receive(out io.Writer, c *client.Client) error {
	for {
		line, err := c.ReadLine(0)
		if line != "" {
			fmt.Fprintln(out, cyan(line))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			fmt.Fprintln(out, red(err.Error()))
			return err
		}
	}
}

// readLines feeds r into a channel line by line; it is closed at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
