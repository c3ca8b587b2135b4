package main

import (
	"flag"
	"fmt"

	"github.com/fahmaliyi/govault/cli"
	"github.com/fahmaliyi/govault/vault"
)

func main() {
	tui := flag.Bool("tui", false, "run the full-screen TUI instead of the command REPL")
	drive := flag.Bool("drive", false, "enable Google Drive sync (push/pull commands)")
	flag.Parse()

	dir, err := cli.GetVaultDir()
	if err != nil {
		fmt.Println("Error determining vault directory:", err)
		return
	}

	v := vault.NewVault(dir)
	if *drive {
		v.SetSyncer(&vault.GoogleDriveSync{})
	}

	initialized, err := v.IsInitialized()
	if err != nil {
		fmt.Println("Error reading vault config:", err)
		return
	}

	if !initialized {
		fmt.Println("No vault found. Setting up new master password.")
		pw := cli.ReadPasswordMasked("Set master password: ")
		if _, err := v.CreateVault(pw, 0); err != nil {
			fmt.Println("Error creating vault:", err)
			return
		}
	} else {
		pw := cli.ReadPasswordMasked("Enter master password: ")
		if _, err := v.Unlock(pw); err != nil {
			fmt.Println("Error unlocking vault:", err)
			return
		}
	}
	defer v.Lock()

	if *tui {
		cli.RunTUI(v)
	} else {
		cli.RunCommands(v)
	}
}
