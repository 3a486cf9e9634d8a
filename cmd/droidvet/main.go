// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// droidvet is the operator CLI for the triage daemon: submit tasks,
// inspect results, and resolve interactive session addresses.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const usage = `usage: droidvet [--server URL] <command> [args]

commands:
  submit --type <text|link|file|app> --payload <payload>
  status <task-id>
  list
  vnc <session-id>
`

func run(args []string) error {
	flags := pflag.NewFlagSet("droidvet", pflag.ContinueOnError)
	server := flags.String("server", "http://127.0.0.1:8002", "daemon base URL")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := flags.Parse(args); err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return fmt.Errorf("a command is required")
	}

	client := &client{base: *server, http: &http.Client{Timeout: 30 * time.Second}}
	switch rest[0] {
	case "submit":
		return client.submit(rest[1:])
	case "status":
		if len(rest) != 2 {
			return fmt.Errorf("usage: droidvet status <task-id>")
		}
		return client.get("/tasks/" + rest[1])
	case "list":
		return client.get("/tasks")
	case "vnc":
		if len(rest) != 2 {
			return fmt.Errorf("usage: droidvet vnc <session-id>")
		}
		return client.get("/sessions/" + rest[1] + "/vnc")
	}
	flags.Usage()
	return fmt.Errorf("unknown command %q", rest[0])
}

type client struct {
	base string
	http *http.Client
}

func (c *client) submit(args []string) error {
	flags := pflag.NewFlagSet("submit", pflag.ContinueOnError)
	taskType := flags.String("type", "", "task type: text, link, file, or app")
	payload := flags.String("payload", "", "task payload: message text, URL, or artifact reference")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *taskType == "" || *payload == "" {
		return fmt.Errorf("--type and --payload are required")
	}

	body, err := json.Marshal(map[string]string{"type": *taskType, "payload": *payload})
	if err != nil {
		return err
	}
	response, err := c.http.Post(c.base+"/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return printResponse(response)
}

func (c *client) get(path string) error {
	response, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	return printResponse(response)
}

// printResponse pretty-prints the JSON body and fails the command on
// non-2xx statuses so scripts can rely on the exit code.
func printResponse(response *http.Response) error {
	defer response.Body.Close()
	body, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		pretty.Write(body)
	}
	fmt.Println(pretty.String())

	if response.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", response.Status)
	}
	return nil
}
