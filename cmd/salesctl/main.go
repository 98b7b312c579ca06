// Command salesctl is an interactive shell over salesclient, for manually
// exercising a running salesd instance (SPEC_FULL.md Supplement #4).
//
// Grounded on gurre-prime-fix-md-go/fixclient's Repl: a readline prompt with
// tab completion, one line split into space-separated fields, dispatched by
// first word to a per-command handler that prints a usage string on bad
// arguments instead of crashing the shell.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/adred-codev/salesd/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:12345", "salesd server address")
	flag.Parse()

	c, err := salesclient.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "salesctl: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	completer := readline.NewPrefixCompleter(
		readline.PcItem("register"),
		readline.PcItem("login"),
		readline.PcItem("add"),
		readline.PcItem("newday"),
		readline.PcItem("aggr-qty"),
		readline.PcItem("aggr-vol"),
		readline.PcItem("aggr-avg"),
		readline.PcItem("aggr-max"),
		readline.PcItem("filter"),
		readline.PcItem("wait-simul"),
		readline.PcItem("wait-consec"),
		readline.PcItem("day"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "salesctl> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "salesctl: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("connected to %s\n", *addr)
	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		dispatch(c, parts)
	}
}

func dispatch(c *salesclient.Client, parts []string) {
	switch parts[0] {
	case "register":
		cmdRegister(c, parts)
	case "login":
		cmdLogin(c, parts)
	case "add":
		cmdAdd(c, parts)
	case "newday":
		cmdNewDay(c)
	case "aggr-qty":
		cmdAggregate(c, "aggr-qty", c.AggregateQty, parts)
	case "aggr-vol":
		cmdAggregate(c, "aggr-vol", c.AggregateVol, parts)
	case "aggr-avg":
		cmdAggregate(c, "aggr-avg", c.AggregateAvg, parts)
	case "aggr-max":
		cmdAggregate(c, "aggr-max", c.AggregateMax, parts)
	case "filter":
		cmdFilter(c, parts)
	case "wait-simul":
		cmdWaitSimul(c, parts)
	case "wait-consec":
		cmdWaitConsec(c, parts)
	case "day":
		cmdDay(c)
	case "help":
		printHelp()
	case "exit", "quit":
		os.Exit(0)
	default:
		fmt.Printf("unknown command %q, type 'help' for the command list\n", parts[0])
	}
}

func printHelp() {
	fmt.Print(`commands:
  register <user> <pass>
  login <user> <pass>
  add <product> <qty> <price>
  newday
  aggr-qty|aggr-vol|aggr-avg|aggr-max <product> <days>
  filter <day> [product...]
  wait-simul <product1> <product2>
  wait-consec <n>
  day
  exit
`)
}

func cmdRegister(c *salesclient.Client, parts []string) {
	if len(parts) != 3 {
		fmt.Println("usage: register <user> <pass>")
		return
	}
	created, err := c.Register(parts[1], parts[2])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(created)
}

func cmdLogin(c *salesclient.Client, parts []string) {
	if len(parts) != 3 {
		fmt.Println("usage: login <user> <pass>")
		return
	}
	ok, err := c.Login(parts[1], parts[2])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(ok)
}

func cmdAdd(c *salesclient.Client, parts []string) {
	if len(parts) != 4 {
		fmt.Println("usage: add <product> <qty> <price>")
		return
	}
	qty, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		fmt.Printf("error: qty must be an integer: %v\n", err)
		return
	}
	price, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		fmt.Printf("error: price must be a number: %v\n", err)
		return
	}
	if err := c.AddEvent(parts[1], int32(qty), price); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func cmdNewDay(c *salesclient.Client) {
	if err := c.NewDay(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func cmdAggregate(c *salesclient.Client, name string, fn func(string, int32) (float64, error), parts []string) {
	if len(parts) != 3 {
		fmt.Printf("usage: %s <product> <days>\n", name)
		return
	}
	days, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		fmt.Printf("error: days must be an integer: %v\n", err)
		return
	}
	val, err := fn(parts[1], int32(days))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(val)
}

func cmdFilter(c *salesclient.Client, parts []string) {
	if len(parts) < 2 {
		fmt.Println("usage: filter <day> [product...]")
		return
	}
	day, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		fmt.Printf("error: day must be an integer: %v\n", err)
		return
	}
	sales, err := c.Filter(int32(day), parts[2:])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, s := range sales {
		fmt.Printf("%s\tqty=%d\tprice=%.2f\n", s.Product, s.Qty, s.Price)
	}
	fmt.Printf("%d sale(s)\n", len(sales))
}

func cmdWaitSimul(c *salesclient.Client, parts []string) {
	if len(parts) != 3 {
		fmt.Println("usage: wait-simul <product1> <product2>")
		return
	}
	ok, err := c.WaitSimultaneous(parts[1], parts[2])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(ok)
}

func cmdWaitConsec(c *salesclient.Client, parts []string) {
	if len(parts) != 2 {
		fmt.Println("usage: wait-consec <n>")
		return
	}
	n, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		fmt.Printf("error: n must be an integer: %v\n", err)
		return
	}
	product, ok, err := c.WaitConsecutive(int32(n))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("day ended before the streak was reached")
		return
	}
	fmt.Println(product)
}

func cmdDay(c *salesclient.Client) {
	day, err := c.GetCurrentDay()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(day)
}
