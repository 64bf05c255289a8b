package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// newMenuCmd runs the front-desk loop: one prompt, short commands, everything
// against the HTTP API with the stored session.
func newMenuCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive front-desk session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runMenu(client)
			return nil
		},
	}
}

func runMenu(client *apiClient) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Library front desk. Commands:")
	fmt.Println("  find person | find item | availability | checkout | return")
	fmt.Println("  waitlist | fines | pay fine | exit")

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "find person":
			menuFindPerson(scanner, client)
		case "find item":
			menuFindItem(scanner, client)
		case "availability":
			menuAvailability(scanner, client)
		case "checkout":
			menuCheckout(scanner, client)
		case "return":
			menuReturn(scanner, client)
		case "waitlist":
			menuWaitlist(scanner, client)
		case "fines":
			menuFines(scanner, client)
		case "pay fine":
			menuPayFine(scanner, client)
		case "exit":
			return
		case "":
		default:
			fmt.Println("Unknown command.")
		}
	}
}

func prompt(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

func promptID(sc *bufio.Scanner, label string) (int64, bool) {
	raw, ok := prompt(sc, label)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		fmt.Printf("Invalid id: %s\n", raw)
		return 0, false
	}
	return id, true
}

func menuFindPerson(sc *bufio.Scanner, client *apiClient) {
	term, ok := prompt(sc, "CPF, registration or name: ")
	if !ok || term == "" {
		return
	}

	// Eleven digits reads as a CPF, otherwise try registration then name.
	var persons []personPayload
	var err error
	escaped := url.QueryEscape(term)
	if len(term) == 11 && strings.IndexFunc(term, notDigit) < 0 {
		err = client.do("GET", "/persons/?cpf="+escaped, nil, &persons)
	} else {
		err = client.do("GET", "/persons/?registration="+escaped, nil, &persons)
		if err != nil || len(persons) == 0 {
			err = client.do("GET", "/persons/?name="+escaped, nil, &persons)
		}
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(persons) == 0 {
		fmt.Println("No matches.")
		return
	}
	printPersons(persons)
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

func menuFindItem(sc *bufio.Scanner, client *apiClient) {
	term, ok := prompt(sc, "Item code or title: ")
	if !ok || term == "" {
		return
	}

	var items []itemPayload
	escaped := url.QueryEscape(term)
	err := client.do("GET", "/items/?code="+escaped, nil, &items)
	if err != nil || len(items) == 0 {
		err = client.do("GET", "/items/?title="+escaped, nil, &items)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, it := range items {
		fmt.Printf("%d  %s — %s (%s, %s)\n", it.ID, it.Code, it.Title, it.MaterialType, it.Status)
	}
}

func menuAvailability(sc *bufio.Scanner, client *apiClient) {
	itemID, ok := promptID(sc, "Item ID: ")
	if !ok {
		return
	}
	var resp struct {
		State   string `json:"state"`
		DueDate string `json:"dueDate"`
	}
	if err := client.do("GET", fmt.Sprintf("/items/%d/availability", itemID), nil, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
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
}

func menuCheckout(sc *bufio.Scanner, client *apiClient) {
	personID, ok := promptID(sc, "Person ID: ")
	if !ok {
		return
	}
	itemID, ok := promptID(sc, "Item ID: ")
	if !ok {
		return
	}

	var resp struct {
		Loan struct {
			ID      int64  `json:"id"`
			DueDate string `json:"dueDate"`
		} `json:"loan"`
	}
	err := client.do("POST", "/loans/", map[string]int64{"personId": personID, "itemId": itemID}, &resp)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == 422 {
			fmt.Printf("Loan refused: %s\n", apiErr.Reason)
			return
		}
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Loan %d registered, due %s\n", resp.Loan.ID, resp.Loan.DueDate)
}

func menuReturn(sc *bufio.Scanner, client *apiClient) {
	loanID, ok := promptID(sc, "Loan ID: ")
	if !ok {
		return
	}
	var resp struct {
		NextWaitlisted *struct {
			PersonID int64 `json:"personId"`
		} `json:"nextWaitlisted"`
	}
	if err := client.do("POST", fmt.Sprintf("/loans/%d/return", loanID), nil, &resp); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Returned.")
	if resp.NextWaitlisted != nil {
		fmt.Printf("Notify person %d: next on the wait-list\n", resp.NextWaitlisted.PersonID)
	}
}

func menuWaitlist(sc *bufio.Scanner, client *apiClient) {
	itemID, ok := promptID(sc, "Item ID: ")
	if !ok {
		return
	}
	personID, ok := promptID(sc, "Person ID: ")
	if !ok {
		return
	}
	if err := client.do("POST", fmt.Sprintf("/items/%d/waitlist", itemID), map[string]int64{"personId": personID}, nil); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Enrolled on the wait-list.")
}

func menuFines(sc *bufio.Scanner, client *apiClient) {
	personID, ok := promptID(sc, "Person ID: ")
	if !ok {
		return
	}
	var fines []struct {
		ID     int64 `json:"id"`
		Amount int64 `json:"amountCents"`
		Paid   bool  `json:"paid"`
	}
	if err := client.do("GET", fmt.Sprintf("/persons/%d/fines", personID), nil, &fines); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(fines) == 0 {
		fmt.Println("No fines.")
		return
	}
	for _, f := range fines {
		status := "unpaid"
		if f.Paid {
			status = "paid"
		}
		fmt.Printf("%d  R$ %d.%02d  %s\n", f.ID, f.Amount/100, f.Amount%100, status)
	}
}

func menuPayFine(sc *bufio.Scanner, client *apiClient) {
	fineID, ok := promptID(sc, "Fine ID: ")
	if !ok {
		return
	}
	if err := client.do("POST", fmt.Sprintf("/fines/%d/pay", fineID), nil, nil); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Fine settled.")
}
