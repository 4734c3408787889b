package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"livescribe/internal/domain"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(logger)
	app.Startup(ctx)
	defer app.Shutdown()

	fmt.Println("commands: start | pause | resume | stop | ask <question> | status | quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := dispatch(app, strings.TrimSpace(line)); done {
				return
			}
		}
	}
}

func dispatch(app *App, line string) bool {
	command, rest, _ := strings.Cut(line, " ")
	switch command {
	case "":
	case "start":
		report(app.StartRecording())
	case "pause":
		report(app.PauseRecording())
	case "resume":
		report(app.ResumeRecording())
	case "stop":
		result, err := app.StopRecording()
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Printf("recording %s saved=%t segments=%d\n%s\n",
			result.RecordingID, result.Saved, result.SegmentCount, result.Transcript)
	case "ask":
		if err := app.Ask(strings.TrimSpace(rest)); err != nil {
			fmt.Println("error:", err)
		}
	case "status":
		status := app.GetStatus()
		fmt.Printf("state=%s active=%t segments=%d %s\n",
			status.State, status.Active, status.SegmentCount, status.Message)
	case "quit", "exit":
		return true
	default:
		fmt.Println("unknown command:", command)
	}
	return false
}

func report(status domain.Status, err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("state=%s active=%t\n", status.State, status.Active)
}
