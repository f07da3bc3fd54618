package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/erazemk/oprema/internal/auth"
	"github.com/erazemk/oprema/internal/model"
)

func addCmd(opts *globalOptions) *cobra.Command {
	var (
		quantity string
		req      model.AddRequest
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an item or increase its quantity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			req.Name = args[0]
			if cmd.Flags().Changed("quantity") {
				n := model.ParseQuantity(quantity)
				req.Quantity = &n
			}

			res, err := a.store.AddOrMerge(cmd.Context(), req)
			if err != nil {
				return err
			}

			verb := "merged"
			if res.Created {
				verb = "created"
			}
			fmt.Printf("%s %q: quantity %d\n", verb, res.Item.Name, res.Item.Quantity)
			if req.ImageLocator != "" && !res.ImageCached {
				fmt.Println("image could not be cached")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&quantity, "quantity", "n", "1", "quantity to add (may be negative)")
	f.StringVar(&req.Category, "category", "", "item category")
	f.StringVar(&req.Location, "location", "", "storage location")
	f.StringVar(&req.Notes, "notes", "", "free-form notes")
	f.StringVar(&req.ImageLocator, "image", "", "image URL or local path")
	return cmd
}

func deriveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "derive",
		Short: "Generate missing icon and medium images for every cached original",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.cache.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("scanned %d originals, derived %d, failed %d\n", res.Scanned, res.Derived, res.Failed)
			return nil
		},
	}
}

func cacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the image cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "size",
		Short: "Print the disk space used by cached images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			size, err := a.cache.Size()
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d bytes) in %s\n", humanize.Bytes(uint64(size)), size, a.cache.Root())
			return nil
		},
	})

	var category string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached images, optionally for one category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cache.Clear(category); err != nil {
				return err
			}
			if category == "" {
				fmt.Println("cache cleared")
			} else {
				fmt.Printf("cache cleared for %q\n", category)
			}
			return nil
		},
	}
	clearCmd.Flags().StringVar(&category, "category", "", "only clear this category")
	cmd.AddCommand(clearCmd)

	return cmd
}

func statsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print inventory statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			st, err := a.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			size, err := a.cache.Size()
			if err != nil {
				return err
			}

			fmt.Printf("items in database:  %s\n", humanize.Comma(int64(st.TotalItems)))
			fmt.Printf("items in inventory: %s\n", humanize.Comma(int64(st.InventoryItems)))
			fmt.Printf("total quantity:     %s\n", humanize.Comma(int64(st.TotalQuantity)))
			fmt.Printf("image cache:        %s\n", humanize.Bytes(uint64(size)))

			categories, err := a.store.ListCategories(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range categories {
				if n, ok := st.CategoryCounts[c]; ok {
					fmt.Printf("  %-20s %s\n", c, humanize.Comma(int64(n)))
				}
			}
			return nil
		},
	}
}

func passwdCmd(opts *globalOptions) *cobra.Command {
	var disable bool

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Set the API passphrase (enables authentication)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if disable {
				if err := a.store.SetPassphraseHash(ctx, ""); err != nil {
					return err
				}
				fmt.Println("authentication disabled")
				return nil
			}

			passphrase, err := promptPassphrase()
			if err != nil {
				return err
			}
			return setPassphrase(ctx, a, passphrase)
		},
	}

	cmd.Flags().BoolVar(&disable, "disable", false, "remove the passphrase and open the API")
	return cmd
}

func setPassphrase(ctx context.Context, a *app, passphrase string) error {
	hash, err := auth.HashPassphrase(passphrase)
	if err != nil {
		return err
	}
	if err := a.store.SetPassphraseHash(ctx, hash); err != nil {
		return err
	}
	fmt.Println("passphrase updated")
	return nil
}

// promptPassphrase reads the passphrase twice without echo when stdin is a
// terminal, or once from a pipe.
func promptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "New passphrase: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passphrases do not match")
	}
	return string(first), nil
}
