package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(raw)), nil
}

func newLoginCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "login <cpf>",
		Short: "Authenticate and store the access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			var resp struct {
				AccessToken string `json:"accessToken"`
				Person      struct {
					FullName string `json:"fullName"`
					Category string `json:"category"`
				} `json:"person"`
			}
			if err := client.do("POST", "/auth/login", map[string]string{
				"cpf": args[0], "password": password,
			}, &resp); err != nil {
				return err
			}
			if err := saveToken(resp.AccessToken); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			fmt.Printf("Logged in as %s (%s)\n", resp.Person.FullName, resp.Person.Category)
			return nil
		},
	}
}

func newLogoutCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = client.do("POST", "/auth/logout", nil, nil)
			if err := clearToken(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

type personPayload struct {
	ID                 int64   `json:"id"`
	CPF                string  `json:"cpf"`
	FullName           string  `json:"fullName"`
	Category           string  `json:"category"`
	Status             string  `json:"status"`
	Email              *string `json:"email"`
	RegistrationNumber *string `json:"registrationNumber"`
}

func printPersons(persons []personPayload) {
	fmt.Printf("%-5s %-14s %-30s %-10s %-8s\n", "ID", "CPF", "Name", "Category", "Status")
	fmt.Println(strings.Repeat("-", 72))
	for _, p := range persons {
		fmt.Printf("%-5d %-14s %-30s %-10s %-8s\n", p.ID, p.CPF, truncate(p.FullName, 30), p.Category, p.Status)
	}
}

func newPersonCmd(client *apiClient) *cobra.Command {
	person := &cobra.Command{
		Use:   "person",
		Short: "Manage person records",
	}

	var (
		fullName     string
		birthDate    string
		category     string
		phone        string
		address      string
		email        string
		registration string
		department   string
		withPassword bool
	)
	create := &cobra.Command{
		Use:   "create <cpf>",
		Short: "Register a new person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"cpf":       args[0],
				"fullName":  fullName,
				"birthDate": birthDate,
				"category":  category,
				"phone":     phone,
				"address":   address,
			}
			if email != "" {
				body["email"] = email
			}
			if registration != "" {
				body["registrationNumber"] = registration
			}
			if department != "" {
				body["department"] = department
			}
			if withPassword {
				password, err := readPassword("Password for the new person: ")
				if err != nil {
					return err
				}
				body["password"] = password
			}

			var created personPayload
			if err := client.do("POST", "/persons/", body, &created); err != nil {
				return err
			}
			fmt.Printf("Created person %d (%s)\n", created.ID, created.FullName)
			return nil
		},
	}
	create.Flags().StringVar(&fullName, "name", "", "full name")
	create.Flags().StringVar(&birthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
	create.Flags().StringVar(&category, "category", "", "student, professor, visitor or librarian")
	create.Flags().StringVar(&phone, "phone", "", "contact phone")
	create.Flags().StringVar(&address, "address", "", "postal address")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&registration, "registration", "", "registration number")
	create.Flags().StringVar(&department, "department", "", "department")
	create.Flags().BoolVar(&withPassword, "set-password", false, "prompt for a login password")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("birth-date")
	_ = create.MarkFlagRequired("category")

	find := &cobra.Command{
		Use:   "find",
		Short: "Look up persons by cpf, registration or name",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := cmd.Flags()
			var term string
			for _, key := range []string{"cpf", "registration", "name"} {
				if value, _ := query.GetString(key); value != "" {
					term = key + "=" + url.QueryEscape(value)
					break
				}
			}
			if term == "" {
				return fmt.Errorf("one of --cpf, --registration or --name is required")
			}

			var persons []personPayload
			if err := client.do("GET", "/persons/?"+term, nil, &persons); err != nil {
				return err
			}
			if len(persons) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			printPersons(persons)
			return nil
		},
	}
	find.Flags().String("cpf", "", "exact CPF")
	find.Flags().String("registration", "", "exact registration number")
	find.Flags().String("name", "", "name substring")

	var statusReason string
	deactivate := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.do("POST", "/persons/"+args[0]+"/status", map[string]string{
				"status": "inactive", "reason": statusReason,
			}, nil); err != nil {
				return err
			}
			fmt.Println("Person deactivated")
			return nil
		},
	}
	deactivate.Flags().StringVar(&statusReason, "reason", "", "reason for deactivation")
	_ = deactivate.MarkFlagRequired("reason")

	activate := &cobra.Command{
		Use:   "activate <id>",
		Short: "Reactivate a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.do("POST", "/persons/"+args[0]+"/status", map[string]string{
				"status": "active",
			}, nil); err != nil {
				return err
			}
			fmt.Println("Person reactivated")
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a person's circulation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []struct {
				ItemID   int64  `json:"itemId"`
				LoanID   int64  `json:"loanId"`
				Action   string `json:"action"`
				ActionAt string `json:"actionAt"`
			}
			if err := client.do("GET", "/persons/"+args[0]+"/history", nil, &entries); err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No circulation history.")
				return nil
			}
			fmt.Printf("%-8s %-8s %-8s %s\n", "Loan", "Item", "Action", "At")
			fmt.Println(strings.Repeat("-", 52))
			for _, e := range entries {
				fmt.Printf("%-8d %-8d %-8s %s\n", e.LoanID, e.ItemID, e.Action, e.ActionAt)
			}
			return nil
		},
	}

	person.AddCommand(create, find, deactivate, activate, history)
	return person
}

type itemPayload struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Code         string `json:"code"`
	MaterialType string `json:"materialType"`
	Status       string `json:"status"`
	Restricted   bool   `json:"restricted"`
}

func newItemCmd(client *apiClient) *cobra.Command {
	item := &cobra.Command{
		Use:   "item",
		Short: "Manage catalog items",
	}

	var (
		title        string
		author       string
		materialType string
		restricted   bool
	)
	add := &cobra.Command{
		Use:   "add <code>",
		Short: "Add a catalog item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var created itemPayload
			if err := client.do("POST", "/items/", map[string]interface{}{
				"code": args[0], "title": title, "author": author,
				"materialType": materialType, "restricted": restricted,
			}, &created); err != nil {
				return err
			}
			fmt.Printf("Added item %d (%s)\n", created.ID, created.Title)
			return nil
		},
	}
	add.Flags().StringVar(&title, "title", "", "item title")
	add.Flags().StringVar(&author, "author", "", "author")
	add.Flags().StringVar(&materialType, "type", "", "material type (book, magazine, ...)")
	add.Flags().BoolVar(&restricted, "restricted", false, "restricted circulation")
	_ = add.MarkFlagRequired("title")
	_ = add.MarkFlagRequired("type")

	availability := &cobra.Command{
		Use:   "availability <id>",
		Short: "Check whether an item can be borrowed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				State   string `json:"state"`
				DueDate string `json:"dueDate"`
			}
			if err := client.do("GET", "/items/"+args[0]+"/availability", nil, &resp); err != nil {
				return err
			}
			switch resp.State {
			case "available":
				fmt.Println("Available")
			case "on_loan":
				if resp.DueDate != "" {
					fmt.Printf("On loan, expected back %s\n", resp.DueDate)
				} else {
					fmt.Println("On loan")
				}
			default:
				fmt.Println("Not found")
			}
			return nil
		},
	}

	find := &cobra.Command{
		Use:   "find",
		Short: "Look up items by code or title",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			title, _ := cmd.Flags().GetString("title")
			var query string
			switch {
			case code != "":
				query = "code=" + url.QueryEscape(code)
			case title != "":
				query = "title=" + url.QueryEscape(title)
			default:
				return fmt.Errorf("one of --code or --title is required")
			}

			var items []itemPayload
			if err := client.do("GET", "/items/?"+query, nil, &items); err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			fmt.Printf("%-5s %-10s %-30s %-10s %-10s\n", "ID", "Code", "Title", "Type", "Status")
			fmt.Println(strings.Repeat("-", 70))
			for _, it := range items {
				fmt.Printf("%-5d %-10s %-30s %-10s %-10s\n", it.ID, it.Code, truncate(it.Title, 30), it.MaterialType, it.Status)
			}
			return nil
		},
	}
	find.Flags().String("code", "", "exact item code")
	find.Flags().String("title", "", "title substring")

	item.AddCommand(add, availability, find)
	return item
}

func newLoanCmd(client *apiClient) *cobra.Command {
	loan := &cobra.Command{
		Use:   "loan",
		Short: "Checkout, return and list loans",
	}

	var personID, itemID int64
	checkout := &cobra.Command{
		Use:   "checkout",
		Short: "Loan an item to a person",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Decision struct {
					Approved bool   `json:"approved"`
					Reason   string `json:"reason"`
					DueDate  string `json:"dueDate"`
					OnLoan   bool   `json:"onLoan"`
				} `json:"decision"`
				Loan struct {
					ID      int64  `json:"id"`
					DueDate string `json:"dueDate"`
				} `json:"loan"`
			}
			err := client.do("POST", "/loans/", map[string]int64{
				"personId": personID, "itemId": itemID,
			}, &resp)
			if err != nil {
				// A rejected checklist comes back as 422; surface the
				// reason instead of a bare error.
				var apiErr *apiError
				if errors.As(err, &apiErr) && apiErr.Status == 422 {
					fmt.Printf("Loan refused: %s\n", apiErr.Reason)
					return nil
				}
				return err
			}
			fmt.Printf("Loan %d registered, due %s\n", resp.Loan.ID, resp.Loan.DueDate)
			return nil
		},
	}
	checkout.Flags().Int64Var(&personID, "person", 0, "person id")
	checkout.Flags().Int64Var(&itemID, "item", 0, "item id")
	_ = checkout.MarkFlagRequired("person")
	_ = checkout.MarkFlagRequired("item")

	ret := &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Close a loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Loan struct {
					ItemID int64 `json:"itemId"`
				} `json:"loan"`
				NextWaitlisted *struct {
					PersonID int64 `json:"personId"`
				} `json:"nextWaitlisted"`
			}
			if err := client.do("POST", "/loans/"+args[0]+"/return", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Item %d returned\n", resp.Loan.ItemID)
			if resp.NextWaitlisted != nil {
				fmt.Printf("Notify person %d: next on the wait-list\n", resp.NextWaitlisted.PersonID)
			}
			return nil
		},
	}

	var listPerson int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List active loans",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/loans/"
			if listPerson > 0 {
				path = fmt.Sprintf("/loans/?personId=%d", listPerson)
			}
			var loans []struct {
				ID       int64  `json:"id"`
				PersonID int64  `json:"personId"`
				ItemID   int64  `json:"itemId"`
				DueDate  string `json:"dueDate"`
			}
			if err := client.do("GET", path, nil, &loans); err != nil {
				return err
			}
			if len(loans) == 0 {
				fmt.Println("No active loans.")
				return nil
			}
			fmt.Printf("%-8s %-8s %-8s %s\n", "Loan", "Person", "Item", "Due")
			fmt.Println(strings.Repeat("-", 40))
			for _, l := range loans {
				fmt.Printf("%-8d %-8d %-8d %s\n", l.ID, l.PersonID, l.ItemID, l.DueDate)
			}
			return nil
		},
	}
	list.Flags().Int64Var(&listPerson, "person", 0, "filter by person id")

	var waitPersonID int64
	waitlist := &cobra.Command{
		Use:   "waitlist <item-id>",
		Short: "Enroll a person on an item's wait-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entry struct {
				ID int64 `json:"id"`
			}
			if err := client.do("POST", "/items/"+args[0]+"/waitlist", map[string]int64{
				"personId": waitPersonID,
			}, &entry); err != nil {
				return err
			}
			fmt.Printf("Wait-list entry %d created\n", entry.ID)
			return nil
		},
	}
	waitlist.Flags().Int64Var(&waitPersonID, "person", 0, "person id")
	_ = waitlist.MarkFlagRequired("person")

	loan.AddCommand(checkout, ret, list, waitlist)
	return loan
}

func newFineCmd(client *apiClient) *cobra.Command {
	fine := &cobra.Command{
		Use:   "fine",
		Short: "Manage fines",
	}

	list := &cobra.Command{
		Use:   "list <person-id>",
		Short: "List a person's fines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fines []struct {
				ID     int64 `json:"id"`
				Amount int64 `json:"amountCents"`
				Paid   bool  `json:"paid"`
			}
			if err := client.do("GET", "/persons/"+args[0]+"/fines", nil, &fines); err != nil {
				return err
			}
			if len(fines) == 0 {
				fmt.Println("No fines.")
				return nil
			}
			fmt.Printf("%-8s %-12s %s\n", "Fine", "Amount", "Paid")
			fmt.Println(strings.Repeat("-", 30))
			for _, f := range fines {
				fmt.Printf("%-8d R$ %d.%02d    %t\n", f.ID, f.Amount/100, f.Amount%100, f.Paid)
			}
			return nil
		},
	}

	pay := &cobra.Command{
		Use:   "pay <fine-id>",
		Short: "Settle a fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.do("POST", "/fines/"+args[0]+"/pay", nil, nil); err != nil {
				return err
			}
			fmt.Println("Fine settled")
			return nil
		},
	}

	fine.AddCommand(list, pay)
	return fine
}

func newPolicyCmd(client *apiClient) *cobra.Command {
	policy := &cobra.Command{
		Use:   "policy",
		Short: "Manage loan policies",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List loan policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var policies []struct {
				Category     string  `json:"category"`
				MaterialType *string `json:"materialType"`
				LoanDays     int     `json:"loanDays"`
				MaxLoans     int     `json:"maxLoans"`
			}
			if err := client.do("GET", "/policies/", nil, &policies); err != nil {
				return err
			}
			fmt.Printf("%-12s %-12s %-6s %s\n", "Category", "Material", "Days", "Max loans")
			fmt.Println(strings.Repeat("-", 44))
			for _, p := range policies {
				material := "(any)"
				if p.MaterialType != nil {
					material = *p.MaterialType
				}
				fmt.Printf("%-12s %-12s %-6d %d\n", p.Category, material, p.LoanDays, p.MaxLoans)
			}
			return nil
		},
	}

	var (
		materialType string
		loanDays     int
		maxLoans     int
	)
	set := &cobra.Command{
		Use:   "set <category>",
		Short: "Create or update a loan policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"category": args[0], "loanDays": loanDays, "maxLoans": maxLoans,
			}
			if materialType != "" {
				body["materialType"] = materialType
			}
			if err := client.do("PUT", "/policies/", body, nil); err != nil {
				return err
			}
			fmt.Println("Policy saved")
			return nil
		},
	}
	set.Flags().StringVar(&materialType, "material", "", "material type, empty for category-wide")
	set.Flags().IntVar(&loanDays, "days", 0, "loan duration in days")
	set.Flags().IntVar(&maxLoans, "max-loans", 0, "concurrent-loan cap")
	_ = set.MarkFlagRequired("days")
	_ = set.MarkFlagRequired("max-loans")

	policy.AddCommand(list, set)
	return policy
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
