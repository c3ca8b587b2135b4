package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fahmaliyi/govault/vault"
)

// AddFileCLI prompts for a source file path and adds it to the vault,
// printing the resulting item's metadata.
func AddFileCLI(v *vault.Vault) {
	fmt.Print("\n--- Add New File ---\n")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Path to file: ")
	path, _ := reader.ReadString('\n')
	path = strings.TrimSpace(path)

	item, err := v.AddFile(path)
	if err != nil {
		fmt.Println("Error adding file:", err)
		fmt.Println("Press Enter to continue...")
		reader.ReadString('\n')
		return
	}

	fmt.Printf("Added %q as item %s (%d bytes)\n", item.OriginalFileName, item.ID, item.OriginalByteCount)
	fmt.Println("Press Enter to continue...")
	reader.ReadString('\n')
}
