package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talaqi/talaqi/internal/search"
	"github.com/talaqi/talaqi/internal/store"
)

var (
	askTopK        int
	askCategory    string
	askCity        string
	askGovernorate string
	askType        string
	askJSON        bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from stored reports and knowledge",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "Number of snippets to retrieve (default: TALAQI_ASSISTANT_TOP_K)")
	askCmd.Flags().StringVar(&askCategory, "category", "", "Only consider items in this category")
	askCmd.Flags().StringVar(&askCity, "city", "", "Only consider items in this city")
	askCmd.Flags().StringVar(&askGovernorate, "governorate", "", "Only consider items in this governorate")
	askCmd.Flags().StringVar(&askType, "type", "", "Only consider Lost, Found or Knowledge entries")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the answer as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.assistant.Ask(ctx, strings.Join(args, " "), askTopK, search.Filters{
		Category:    askCategory,
		City:        askCity,
		Governorate: askGovernorate,
		ItemType:    store.ItemType(askType),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Fprintln(out, answer.Answer)
	if len(answer.Snippets) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, s := range answer.Snippets {
			fmt.Fprintf(out, "  [%d] %s %s (%.2f)\n", i+1, s.ItemType, s.ItemID, s.Score)
		}
	}

	return nil
}
