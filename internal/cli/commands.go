package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/ryym/procfleet/internal/logrecord"
)

// RunList executes the 'ps' command: lists every known process.
func RunList(client *Client) error {
	descriptors, err := client.List()
	if err != nil {
		return err
	}
	if len(descriptors) == 0 {
		fmt.Println("No processes")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOMMAND\tPID\tRETURNCODE")
	for _, d := range descriptors {
		pid := "-"
		if d.PID != nil {
			pid = fmt.Sprintf("%d", *d.PID)
		}
		rc := "-"
		if d.ReturnCode != nil {
			rc = fmt.Sprintf("%d", *d.ReturnCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, strings.Join(d.Command, " "), pid, rc)
	}
	return w.Flush()
}

// RunCreate executes the 'run' command: registers (and by default starts) a
// new process.
func RunCreate(client *Client, name string, command []string, start bool) error {
	d, err := client.Create(name, command, start)
	if err != nil {
		return fmt.Errorf("create failed: %w", err)
	}
	fmt.Printf("Created %s\n", d.Name)
	return nil
}

// RunStart executes the 'start' command.
func RunStart(client *Client, name string) error {
	d, err := client.Start(name)
	if err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	fmt.Printf("Started %s\n", d.Name)
	return nil
}

// RunStop executes the 'stop' command.
func RunStop(client *Client, names []string, kill bool) error {
	for _, name := range names {
		if _, err := client.Stop(name, kill); err != nil {
			return fmt.Errorf("stop %s: %w", name, err)
		}
		fmt.Printf("Stopped %s\n", name)
	}
	return nil
}

// RunRestart executes the 'restart' command.
func RunRestart(client *Client, names []string, killExisting, clearLogs bool) error {
	for _, name := range names {
		if _, err := client.Restart(name, killExisting, clearLogs); err != nil {
			return fmt.Errorf("restart %s: %w", name, err)
		}
		fmt.Printf("Restarted %s\n", name)
	}
	return nil
}

// RunDelete executes the 'rm' command.
func RunDelete(client *Client, names []string) error {
	for _, name := range names {
		if err := client.Delete(name); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
		fmt.Printf("Deleted %s\n", name)
	}
	return nil
}

// RunLogs executes the 'logs' command: prints buffered output, and with
// follow set, keeps streaming live output until interrupted.
func RunLogs(client *Client, names []string, lines int, includeStderr, follow bool) error {
	formatter := NewLogFormatter(os.Stdout, names)

	if !follow {
		for _, name := range names {
			records, err := client.Tail(name, lines, includeStderr)
			if err != nil {
				return fmt.Errorf("tail %s: %w", name, err)
			}
			printRecords(formatter, name, records)
		}
		return nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})
	go func() {
		<-sigCh
		close(stop)
	}()

	errCh := make(chan error, len(names))
	for _, name := range names {
		go func(name string) {
			errCh <- client.StreamTail(name, lines, stop, func(rec logrecord.Record) {
				if !includeStderr && rec.Kind == logrecord.Stderr {
					return
				}
				formatter.PrintLine(name, strings.TrimSuffix(rec.Text, "\n"))
			})
		}(name)
	}

	for range names {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

func printRecords(formatter *LogFormatter, name string, records []logrecord.Record) {
	for _, rec := range records {
		formatter.PrintLine(name, strings.TrimSuffix(rec.Text, "\n"))
	}
}

// RunWrite executes the 'write' command: sends one line to a process's
// stdin.
func RunWrite(client *Client, name, line string) error {
	if err := client.Write(name, line); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
