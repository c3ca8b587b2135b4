package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/fahmaliyi/govault/vault"
)

// RunCommands drives a line-oriented REPL over an already-unlocked vault.
func RunCommands(v *vault.Vault) {
	reader := bufio.NewReader(os.Stdin)
	var idMap map[int]string

	for {
		fmt.Println("\nCommands: a=add, l=list, s N=show, x N=export, d N=delete, p=change password, push/pull=sync, q=quit")
		fmt.Print("> ")

		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "a":
			handleAdd(v, reader)
			idMap = nil
		case "l":
			idMap = handleList(v)
		case "s", "x", "d":
			if len(parts) < 2 {
				fmt.Println("Specify item number")
				continue
			}
			var num int
			fmt.Sscanf(parts[1], "%d", &num)
			id, ok := idMap[num]
			if !ok {
				fmt.Println("Invalid item number")
				continue
			}
			switch cmd {
			case "s":
				handleShow(v, id)
			case "x":
				handleExport(v, id, reader)
			case "d":
				handleDelete(v, id)
			}
		case "p":
			if !handleChangePassword(v) {
				return
			}
			idMap = nil
		case "push":
			if err := v.Push(); err != nil {
				fmt.Println("Push failed:", err)
			} else {
				fmt.Println("Vault pushed to remote.")
			}
		case "pull":
			fmt.Println("Pulling locks the vault and overwrites local files.")
			if err := v.Pull(); err != nil {
				fmt.Println("Pull failed:", err)
				return
			}
			if !reUnlock(v) {
				return
			}
			idMap = nil
		case "q":
			fmt.Println("Exiting.")
			return
		default:
			fmt.Println("Unknown command")
		}
	}
}

// handleChangePassword re-wraps the master key under a new password. The
// vault ends up locked, so the user is prompted to unlock again; a false
// return means they gave up and the REPL should exit.
func handleChangePassword(v *vault.Vault) bool {
	cur := ReadPasswordMasked("Current password: ")
	next := ReadPasswordMasked("New password: ")

	if err := v.ChangePassword(cur, next, 0); err != nil {
		fmt.Println("Error changing password:", err)
		return true
	}
	fmt.Println("Password changed.")
	return reUnlock(v)
}

func reUnlock(v *vault.Vault) bool {
	for {
		pw := ReadPasswordMasked("Unlock vault: ")
		if len(pw) == 0 {
			return false
		}
		if _, err := v.Unlock(pw); err != nil {
			fmt.Println("Unlock failed:", err)
			continue
		}
		return true
	}
}

func handleAdd(v *vault.Vault, reader *bufio.Reader) {
	fmt.Print("Path to file: ")
	path, _ := reader.ReadString('\n')
	path = strings.TrimSpace(path)

	item, err := v.AddFile(path)
	if err != nil {
		fmt.Println("Error adding file:", err)
		return
	}
	fmt.Printf("Added %q as item %s\n", item.OriginalFileName, item.ID)
}

func handleList(v *vault.Vault) map[int]string {
	items := v.Items()
	fmt.Println("Vault items:")
	idMap := make(map[int]string)
	for i, it := range items {
		num := i + 1
		idMap[num] = it.ID
		fmt.Printf("%d) %s (%d bytes, added %s)\n", num, it.OriginalFileName, it.OriginalByteCount, it.AddedAt)
	}
	return idMap
}

func handleShow(v *vault.Vault, id string) {
	for _, it := range v.Items() {
		if it.ID == id {
			fmt.Printf("ID: %s\nName: %s\nExtension: %s\nSize: %d bytes\nAdded: %s\n",
				it.ID, it.OriginalFileName, it.OriginalFileExtension, it.OriginalByteCount, it.AddedAt)
			return
		}
	}
	fmt.Println("Item not found")
}

func handleExport(v *vault.Vault, id string, reader *bufio.Reader) {
	var target vault.Item
	found := false
	for _, it := range v.Items() {
		if it.ID == id {
			target = it
			found = true
			break
		}
	}
	if !found {
		fmt.Println("Item not found")
		return
	}

	fmt.Print("Export to path: ")
	dest, _ := reader.ReadString('\n')
	dest = strings.TrimSpace(dest)

	if err := v.ExportItem(target, dest); err != nil {
		fmt.Println("Error exporting item:", err)
		return
	}
	clipboard.WriteAll(dest)
	fmt.Println("Exported to", dest, "(path copied to clipboard)")
}

func handleDelete(v *vault.Vault, id string) {
	for _, it := range v.Items() {
		if it.ID == id {
			if err := v.DeleteItem(it); err != nil {
				fmt.Println("Error deleting item:", err)
				return
			}
			fmt.Println("Item deleted!")
			return
		}
	}
	fmt.Println("Item not found")
}
