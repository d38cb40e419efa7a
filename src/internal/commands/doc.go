// Package commands implements the keen-relay CLI subcommands.
//
// Every command implements Runner:
//   - Init(): parse arguments and load configuration
//   - Run(): execute the command
//   - Name(): return the subcommand name
//
// # Available Commands
//
//   - service: run the DNS engine, TUN pump, tunnel server, redirect rules and API
//   - check-config: validate the configuration and print a summary
//   - interfaces: list network interfaces and mark redirect interfaces
//   - undo-redirect: remove iptables redirect rules left by a crashed service
//
// # Example Usage
//
//	cmd := commands.CreateCheckConfigCommand()
//	ctx := &commands.AppContext{ConfigPath: "/opt/etc/keen-relay/keen-relay.toml"}
//	if err := cmd.Init(args, ctx); err != nil {
//	    log.Fatalf("%v", err)
//	}
//	if err := cmd.Run(); err != nil {
//	    log.Fatalf("%v", err)
//	}
package commands
