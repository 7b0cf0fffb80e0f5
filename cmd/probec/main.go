// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Command probec is the XL language compiler and a thin driver for its
// virtual machine: lex, parse, compile, disassemble, or run a .xl source
// file and its transitive imports.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/fatih/color"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/xlatticelabs/xlvm/config"
	"github.com/xlatticelabs/xlvm/integration"
	"github.com/xlatticelabs/xlvm/lang/codegen"
	"github.com/xlatticelabs/xlvm/lang/lexer"
	"github.com/xlatticelabs/xlvm/lang/vm"
	"github.com/xlatticelabs/xlvm/loader"
)

var errColor = color.New(color.FgRed, color.Bold)

func main() {
	app := cli.NewApp()
	app.Name = "probec"
	app.Usage = "compile and run XL (.xl) source files"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		tokensCommand,
		bytecodeCommand,
		runCommand,
		serveCommand,
	}

	if err := app.Run(os.Args); err != nil {
		errColor.Fprintf(os.Stderr, "probec: %v\n", err)
		os.Exit(1)
	}
}

var tokensCommand = cli.Command{
	Name:      "tokens",
	Usage:     "lex a source file and print its token stream",
	ArgsUsage: "<source.xl>",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.NewExitError("usage: probec tokens <source.xl>", 1)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		l := lexer.New(path, string(src))
		toks, err := l.Tokenize()
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		for _, tok := range toks {
			fmt.Printf("%s\t%s\t%q\n", tok.Pos, tok.Type, tok.Literal)
		}
		return nil
	},
}

var bytecodeCommand = cli.Command{
	Name:      "bytecode",
	Usage:     "compile a source file and print its disassembly",
	ArgsUsage: "<source.xl>",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.NewExitError("usage: probec bytecode <source.xl>", 1)
		}
		prog, err := compileEntry(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if errs := codegen.Verify(prog); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, e.Error())
			}
			return cli.NewExitError("bytecode failed verification", 1)
		}
		for _, line := range vm.Disassemble(prog.Code) {
			fmt.Println(line)
		}
		return nil
	},
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "compile a source file and execute a named function",
	ArgsUsage: "<source.xl> [function] [args...]",
	Action: func(c *cli.Context) error {
		rawArgs := []string(c.Args())
		if len(rawArgs) == 0 {
			return cli.NewExitError("usage: probec run <source.xl> [function] [args...]", 1)
		}
		path := rawArgs[0]
		fn := "main"
		var argStrs []string
		if len(rawArgs) > 1 {
			fn = rawArgs[1]
			argStrs = rawArgs[2:]
		}
		var args []int64
		for _, raw := range argStrs {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return cli.NewExitError(fmt.Sprintf("invalid integer argument %q", raw), 1)
			}
			args = append(args, n)
		}

		prog, err := compileEntry(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		addr, ok := prog.FuncAddresses[fn]
		if !ok {
			return cli.NewExitError(fmt.Sprintf("no such function %q", fn), 1)
		}

		mem := vm.NewMemory(0, 0)
		for strAddr, s := range prog.StringPool {
			if err := mem.ReserveString(strAddr, s); err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
		}
		mem.SetHP(prog.NextStringAddr)

		m := vm.New(prog.Code, mem, os.Stdout)
		result, err := m.ExecuteFunction(addr, args)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Printf("%s() = %d\n", fn, result)
		return nil
	},
}

var serveCommand = cli.Command{
	Name:      "serve",
	Usage:     "compile a source file and serve its functions over HTTP",
	ArgsUsage: "<source.xl>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "addr", Value: ":8080", Usage: "listen address"},
		cli.StringFlag{Name: "boot", Value: "", Usage: "function to run once under the boot watchdog before serving"},
		cli.StringFlag{Name: "config", Value: "", Usage: "TOML config file; overrides the positional source and flags above"},
	},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		addr := c.String("addr")
		bootFunc := c.String("boot")

		if cfgFile := c.String("config"); cfgFile != "" {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return cli.NewExitError(fmt.Sprintf("config: %v", err), 1)
			}
			path = cfg.Entry
			bootFunc = cfg.BootFunc
			if cfg.Addr != "" {
				addr = cfg.Addr
			}
		}
		if path == "" {
			return cli.NewExitError("usage: probec serve <source.xl> [--addr :8080] [--boot func] [--config file.toml]", 1)
		}

		engine, err := integration.NewEngine(path, bootFunc)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Printf("probec: serving %s on %s\n", path, addr)
		return http.ListenAndServe(addr, integration.NewHandler(engine))
	},
}

// compileEntry loads the transitive import graph rooted at path, then
// generates its bytecode. It does not run codegen.Verify; callers that want
// verification call it on the result.
func compileEntry(path string) (*codegen.Program, error) {
	unit, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	prog, err := codegen.Generate(unit)
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	return prog, nil
}
