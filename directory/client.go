// Package directory provides HTTP clients for the collaborating services the
// notification subsystem consumes: the user directory, which supplies active
// user identifiers and email addresses, and the loan service, which supplies
// loans that are coming due.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/libraryhq/notifications/fanout"
)

// Client talks to the user directory and loan service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the collaborating services rooted at the given
// base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// get performs a GET request and decodes the JSON response body.
func (c *Client) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status: %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

// ListActiveUsers returns one page of active user identifiers, excluding the
// given users.
func (c *Client) ListActiveUsers(ctx context.Context, excluding []string, offset, limit int) ([]string, error) {
	wrapMsg := "unable to list active users"

	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	for _, user := range excluding {
		query.Add("excluding", user)
	}

	var body struct {
		Users []string `json:"users"`
	}
	if err := c.get(ctx, "/users/active", query, &body); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	return body.Users, nil
}

// LookupEmailAddress returns the email address on file for a user.
func (c *Client) LookupEmailAddress(ctx context.Context, user string) (string, error) {
	wrapMsg := fmt.Sprintf("unable to look up the email address for `%s`", user)

	query := url.Values{}
	query.Set("user", user)

	var body struct {
		Email string `json:"email"`
	}
	if err := c.get(ctx, "/users/email", query, &body); err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}
	return body.Email, nil
}

// ListDueLoans returns the loans due within the given number of days,
// optionally including loans that are already overdue.
func (c *Client) ListDueLoans(ctx context.Context, daysBeforeDue int, includeOverdue bool) ([]fanout.DueLoan, error) {
	wrapMsg := "unable to list due loans"

	query := url.Values{}
	query.Set("days-before-due", strconv.Itoa(daysBeforeDue))
	query.Set("include-overdue", strconv.FormatBool(includeOverdue))

	var body struct {
		Loans []struct {
			ID        string    `json:"id"`
			User      string    `json:"user"`
			BookTitle string    `json:"book_title"`
			DueDate   time.Time `json:"due_date"`
		} `json:"loans"`
	}
	if err := c.get(ctx, "/loans/due", query, &body); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	loans := make([]fanout.DueLoan, len(body.Loans))
	for i, loan := range body.Loans {
		loans[i] = fanout.DueLoan{
			LoanID:    loan.ID,
			User:      loan.User,
			BookTitle: loan.BookTitle,
			DueDate:   loan.DueDate,
		}
	}
	return loans, nil
}
