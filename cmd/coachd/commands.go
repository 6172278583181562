package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nroy/coachd/internal/config"
)

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage candidate profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profile names",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/profiles")
		if err != nil {
			return err
		}

		var result struct {
			Profiles []string `json:"profiles"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Profiles) == 0 {
			fmt.Println("No profiles yet. Create one with: coachd profile create <name>")
			return nil
		}
		for _, name := range result.Profiles {
			fmt.Println(name)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a profile bundle as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/profiles/" + args[0])
		if err != nil {
			return err
		}

		var bundle any
		if err := decodeJSON(resp, &bundle); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/profiles", map[string]string{"name": args[0]})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Created profile %s", args[0])
		warnIfPresent(result)
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name> <field> <value>",
	Short: "Set a profile field (list fields take comma-separated values)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, field, value := args[0], args[1], args[2]

		listFields := map[string]bool{
			"experience": true, "skills": true, "softSkills": true,
			"learning": true, "certifications": true,
		}

		var patchValue any = value
		if listFields[field] {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			patchValue = parts
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch("/profiles/"+name, map[string]any{field: patchValue})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s.%s", name, field)
		warnIfPresent(result)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- cv ---

var cvCmd = &cobra.Command{
	Use:   "cv <profile> <file>",
	Short: "Upload a CV (.pdf or .docx) and autofill the profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload("/profiles/"+args[0]+"/cv", args[1])
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("CV applied to %s", args[0])
		warnIfPresent(result)
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <profile> <question>",
	Short: "Answer an interview question in the candidate's voice",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		export, _ := cmd.Flags().GetBool("export")
		question := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/ask", map[string]any{
			"profile":  args[0],
			"question": question,
			"export":   export,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer     string `json:"answer"`
			ExportFile string `json:"exportFile"`
			Warning    string `json:"warning"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if result.ExportFile != "" {
			printSuccess("Exported to %s", result.ExportFile)
		}
		if result.Warning != "" {
			printWarning("%s", result.Warning)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("export", false, "write the exchange to the export directory")
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run a guided get-to-know-me session",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <profile>",
	Short: "Start a guided session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		questions, _ := cmd.Flags().GetInt("questions")
		single, _ := cmd.Flags().GetBool("single")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/session/start", map[string]any{
			"profile":   args[0],
			"questions": questions,
			"single":    single,
		})
		if err != nil {
			return err
		}

		var result struct {
			Question string `json:"question"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStep("Question: %s", result.Question)
		fmt.Println("Answer with: coachd session answer <your answer>")
		return nil
	},
}

var sessionAnswerCmd = &cobra.Command{
	Use:   "answer <text>",
	Short: "Answer the current question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/session/answer", map[string]string{
			"answer": strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		var result struct {
			Question string `json:"question"`
			Done     bool   `json:"done"`
			Added    int    `json:"added"`
			Warning  string `json:"warning"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Done {
			printSuccess("Session complete; background now holds %d entries", result.Added)
		} else {
			printStep("Question: %s", result.Question)
		}
		if result.Warning != "" {
			printWarning("%s", result.Warning)
		}
		return nil
	},
}

var sessionExitCmd = &cobra.Command{
	Use:   "exit",
	Short: "End the session, keeping answered questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/session/exit", nil)
		if err != nil {
			return err
		}

		var result struct {
			Added   int    `json:"added"`
			Warning string `json:"warning"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Session ended")
		if result.Warning != "" {
			printWarning("%s", result.Warning)
		}
		return nil
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/session")
		if err != nil {
			return err
		}

		var result struct {
			State    string `json:"state"`
			Question string `json:"question"`
			Answered int    `json:"answered"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("State", "%s", result.State)
		if result.Question != "" {
			printStatus("Question", "%s", result.Question)
			printStatus("Answered", "%d", result.Answered)
		}
		return nil
	},
}

func init() {
	sessionStartCmd.Flags().Int("questions", 3, "number of questions to ask")
	sessionStartCmd.Flags().Bool("single", false, "fetch one question per model call")
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionAnswerCmd)
	sessionCmd.AddCommand(sessionExitCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage a profile's recorded background answers",
}

var historyListCmd = &cobra.Command{
	Use:   "list <profile>",
	Short: "List recorded question/answer pairs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/profiles/" + args[0] + "/history")
		if err != nil {
			return err
		}

		var result struct {
			History []struct {
				Question string `json:"question"`
				Answer   string `json:"answer"`
			} `json:"history"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.History) == 0 {
			fmt.Println("No background recorded yet.")
			return nil
		}
		for i, entry := range result.History {
			fmt.Printf("%s %s\n", colorize(colorBold, fmt.Sprintf("[%d]", i)), entry.Question)
			fmt.Printf("    %s\n", entry.Answer)
		}
		return nil
	},
}

var historyEditCmd = &cobra.Command{
	Use:   "edit <profile> <index> <answer>",
	Short: "Replace the answer at an index",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("index must be an integer")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(
			fmt.Sprintf("/profiles/%s/history/%d", args[0], index),
			map[string]string{"answer": strings.Join(args[2:], " ")},
		)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Updated entry %d", index)
		warnIfPresent(result)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <profile> <index>",
	Short: "Delete the entry at an index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("index must be an integer")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(fmt.Sprintf("/profiles/%s/history/%d", args[0], index))
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted entry %d", index)
		warnIfPresent(result)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyEditCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// --- signup ---

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Request and review accounts",
}

var signupRequestCmd = &cobra.Command{
	Use:   "request <username> <password>",
	Short: "Request a new account (requires admin approval)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Signup is unauthenticated; talk to the server directly.
		c := &apiClient{baseURL: fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port), httpClient: defaultHTTPClient()}
		resp, err := c.post("/signup", map[string]string{
			"username": args[0],
			"password": args[1],
		})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Signup for %s is pending approval", args[0])
		return nil
	},
}

var signupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending signups (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/admin/signups")
		if err != nil {
			return err
		}

		var result struct {
			Signups []struct {
				Username    string `json:"username"`
				Status      string `json:"status"`
				RequestedAt string `json:"requestedAt"`
			} `json:"signups"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Signups) == 0 {
			fmt.Println("No pending signups.")
			return nil
		}
		for _, sg := range result.Signups {
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, sg.Username), sg.Status, sg.RequestedAt)
		}
		return nil
	},
}

func signupReviewCmd(verb string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <username>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a pending signup (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			resp, err := client.post("/admin/signups/"+args[0]+"/"+verb, nil)
			if err != nil {
				return err
			}

			var result map[string]any
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}

			printSuccess("%s: %s", args[0], result["status"])
			return nil
		},
	}
}

func init() {
	signupCmd.AddCommand(signupRequestCmd)
	signupCmd.AddCommand(signupListCmd)
	signupCmd.AddCommand(signupReviewCmd("approve"))
	signupCmd.AddCommand(signupReviewCmd("reject"))
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Browse the interaction log",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/interactions?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Interactions []struct {
				ID        string `json:"id"`
				CreatedAt string `json:"createdAt"`
				Profile   string `json:"profile"`
				Question  string `json:"question"`
			} `json:"interactions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}
		for _, ix := range result.Interactions {
			question := ix.Question
			if len(question) > 80 {
				question = question[:80] + "..."
			}
			fmt.Printf("%s  %s  %s  %s\n",
				colorize(colorCyan, ix.ID[:8]),
				ix.CreatedAt,
				ix.Profile,
				question,
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/interactions/" + args[0])
		if err != nil {
			return err
		}

		var interaction any
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(interaction)
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- helpers ---

func warnIfPresent(result map[string]any) {
	if w, _ := result["warning"].(string); w != "" {
		printWarning("%s", w)
	}
}
