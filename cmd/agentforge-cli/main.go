package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcrosbie/agentforge/internal/client"
	"github.com/bcrosbie/agentforge/internal/domain"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	cfg, _, err := client.LoadConfig()
	if err != nil {
		log.Fatalf("client config error: %v", err)
	}

	base := flag.NewFlagSet("agentforge-cli", flag.ExitOnError)
	addr := base.String("addr", cfg.Addr, "gRPC address")
	insecureConn := base.Bool("insecure", cfg.Insecure, "disable TLS")
	timeout := base.Duration("timeout", cfg.RequestTimeout, "per-request timeout")
	_ = base.Parse(os.Args[1:])

	args := base.Args()
	if len(args) == 0 {
		usage()
		return
	}
	cfg.Addr = *addr
	cfg.Insecure = *insecureConn
	cfg.RequestTimeout = *timeout

	c, err := client.New(cfg)
	if err != nil {
		log.Fatalf("dial error: %v", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "health":
		printResult(c.Health(ctx))
	case "capabilities":
		runCapabilities(ctx, c, commandArgs)
	case "create-agent":
		runCreateAgent(ctx, c, commandArgs)
	case "list-agents":
		printResult(c.ListAgents(ctx))
	case "get-agent":
		printResult(c.GetAgent(ctx, requireID("get-agent", commandArgs)))
	case "remove-agent":
		id := requireID("remove-agent", commandArgs)
		if err := c.RemoveAgent(ctx, id); err != nil {
			log.Fatalf("remove-agent: %v", err)
		}
		printJSON(map[string]any{"removed": id})
	case "execute":
		runExecute(ctx, c, commandArgs)
	case "stress":
		runStress(ctx, c, commandArgs)
	case "metrics":
		printResult(c.Metrics(ctx))
	case "runs":
		runListRuns(ctx, c, commandArgs)
	case "get-run":
		printResult(c.GetRun(ctx, requireID("get-run", commandArgs)))
	case "demo":
		runDemo(ctx, c, commandArgs)
	case "watch":
		runWatch(ctx, c, commandArgs)
	default:
		usage()
	}
}

func runCapabilities(ctx context.Context, c *client.Client, args []string) {
	flags := flag.NewFlagSet("capabilities", flag.ExitOnError)
	agentType := flags.String("type", "", "optional agent type")
	_ = flags.Parse(args)

	if *agentType != "" {
		printResult(c.CapabilitiesFor(ctx, *agentType))
		return
	}
	printResult(c.Capabilities(ctx))
}

func runCreateAgent(ctx context.Context, c *client.Client, args []string) {
	flags := flag.NewFlagSet("create-agent", flag.ExitOnError)
	agentType := flags.String("type", "", "autonomous|collaborative|specialized|multimodal")
	rawConfig := flags.String("config", "", "optional JSON object")
	_ = flags.Parse(args)

	if *agentType == "" {
		log.Fatalf("create-agent requires --type")
	}
	printResult(c.CreateAgent(ctx, *agentType, parseObject("config", *rawConfig)))
}

func runExecute(ctx context.Context, c *client.Client, args []string) {
	flags := flag.NewFlagSet("execute", flag.ExitOnError)
	agentID := flags.String("agent-id", "", "required")
	taskType := flags.String("task", "", "task type, e.g. create_component")
	description := flags.String("description", "", "optional")
	complexity := flags.String("complexity", "", "low|medium|high")
	_ = flags.Parse(args)

	if *agentID == "" {
		log.Fatalf("execute requires --agent-id")
	}
	printResult(c.ExecuteTask(ctx, *agentID, domain.Task{
		Type:        *taskType,
		Description: *description,
		Complexity:  *complexity,
	}))
}

func runStress(ctx context.Context, c *client.Client, args []string) {
	flags := flag.NewFlagSet("stress", flag.ExitOnError)
	agents := flags.Int("agents", 10, "agents to create")
	tasks := flags.Int("tasks", 50, "tasks to run")
	concurrency := flags.Int("concurrency", 5, "max tasks in flight")
	_ = flags.Parse(args)

	printResult(c.RunStressTest(ctx, domain.StressRequest{
		AgentCount:       *agents,
		TaskCount:        *tasks,
		ConcurrencyLimit: *concurrency,
	}))
}

func runListRuns(ctx context.Context, c *client.Client, args []string) {
	flags := flag.NewFlagSet("runs", flag.ExitOnError)
	agentID := flags.String("agent-id", "", "optional")
	taskType := flags.String("task", "", "optional")
	status := flags.String("status", "", "completed|failed")
	limit := flags.Int("limit", 20, "max runs")
	_ = flags.Parse(args)

	printResult(c.ListRuns(ctx, client.RunQuery{
		AgentID:  *agentID,
		TaskType: *taskType,
		Status:   *status,
		Limit:    *limit,
	}))
}

func runDemo(ctx context.Context, c *client.Client, args []string) {
	flags := flag.NewFlagSet("demo", flag.ExitOnError)
	agentType := flags.String("type", "autonomous", "agent type")
	taskType := flags.String("task", "", "optional demo task type")
	description := flags.String("description", "", "optional")
	complexity := flags.String("complexity", "", "low|medium|high")
	rawConfig := flags.String("config", "", "optional JSON object")
	_ = flags.Parse(args)

	printResult(c.StartDemo(ctx, client.DemoInput{
		Type:        *agentType,
		Config:      parseObject("config", *rawConfig),
		DemoTask:    *taskType,
		Description: *description,
		Complexity:  *complexity,
	}))
}

func runWatch(ctx context.Context, c *client.Client, args []string) {
	flags := flag.NewFlagSet("watch", flag.ExitOnError)
	session := flags.String("session", "", "optional session id")
	_ = flags.Parse(args)

	encoder := json.NewEncoder(os.Stdout)
	err := c.Subscribe(ctx, *session, func(event domain.Event) error {
		return encoder.Encode(event)
	})
	if err != nil {
		log.Fatalf("watch: %v", err)
	}
}

func requireID(command string, args []string) string {
	flags := flag.NewFlagSet(command, flag.ExitOnError)
	id := flags.String("id", "", "required")
	_ = flags.Parse(args)
	if *id == "" {
		log.Fatalf("%s requires --id", command)
	}
	return *id
}

func parseObject(name, raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Fatalf("--%s must be a JSON object: %v", name, err)
	}
	return out
}

func printResult[T any](value T, err error) {
	if err != nil {
		log.Fatalf("rpc error: %v", err)
	}
	printJSON(value)
}

func printJSON(value any) {
	serialized, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		log.Fatalf("encode error: %v", err)
	}
	fmt.Println(string(serialized))
}

func usage() {
	fmt.Print(`AgentForge gRPC CLI

Usage:
  agentforge-cli [--addr 127.0.0.1:50051] [--insecure] [--timeout 10s] <command> [flags]

Commands:
  health
  capabilities [--type multimodal]
  create-agent --type autonomous [--config '{"model":"local"}']
  list-agents
  get-agent --id "agent_..."
  remove-agent --id "agent_..."
  execute --agent-id "agent_..." [--task create_component --description "..." --complexity medium]
  stress [--agents 10 --tasks 50 --concurrency 5]
  metrics
  runs [--agent-id "..." --task "..." --status completed|failed --limit 20]
  get-run --id "run_..."
  demo [--type autonomous --task create_component]
  watch [--session "..."]
`)
}
