package main

import (
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/DaylightNebula/RakNet/internal/store"
)

const defaultBlockList = "raknet.db"

func blockCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "block <ip> [reason]",
		Short: "Add an address to the block list",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason := ""
			if len(args) == 2 {
				reason = args[1]
			}

			return withBlockList(path, func(b *store.BlockList) error {
				if err := b.Block(args[0], reason); err != nil {
					return err
				}

				pterm.Success.Printfln("blocked %s", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&path, "db", defaultBlockList, "SQLite block list database")
	return cmd
}

func unblockCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "unblock <ip>",
		Short: "Remove an address from the block list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlockList(path, func(b *store.BlockList) error {
				if err := b.Unblock(args[0]); err != nil {
					return err
				}

				pterm.Success.Printfln("unblocked %s", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&path, "db", defaultBlockList, "SQLite block list database")
	return cmd
}

func blocksCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "List the blocked addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlockList(path, func(b *store.BlockList) error {
				list := b.List()
				if len(list) == 0 {
					pterm.Info.Println("no blocked addresses")
					return nil
				}

				addrs := make([]string, 0, len(list))
				for addr := range list {
					addrs = append(addrs, addr)
				}
				sort.Strings(addrs)

				data := pterm.TableData{{"Address", "Reason"}}
				for _, addr := range addrs {
					data = append(data, []string{addr, list[addr]})
				}

				return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
			})
		},
	}

	cmd.Flags().StringVar(&path, "db", defaultBlockList, "SQLite block list database")
	return cmd
}

func withBlockList(path string, fn func(*store.BlockList) error) error {
	b, err := store.Open(path)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(b)
}
