package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/config"
	"github.com/AntonStoeckl/library-circulation-go/journal"
	"github.com/AntonStoeckl/library-circulation-go/notify"
)

func newDemoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through issuing, reserving, searching and returning with an in-memory catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := runDemo(cmd.Context(), cmd.OutOrStdout(), c.cfg, time.Now)
			return err
		},
	}
}

type demoHolder struct {
	contact  circulation.Contact
	category circulation.Category
}

type demoItem = circulation.ItemDetails

// runDemo registers four holders and four items, lends, reserves, searches and returns,
// and prints what happens to out. It returns the final statistics.
func runDemo(ctx context.Context, out io.Writer, cfg config.Config, now func() time.Time) (circulation.Statistics, error) {
	// Notices are printed without timestamps so runs are comparable.
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})

	noticeLogger := slog.New(handler)
	notifier, err := notify.NewLogNotifier(noticeLogger)
	if err != nil {
		return circulation.Statistics{}, err
	}

	store := journal.NewMemoryJournal()
	recorder, err := journal.NewRecorder(store, "demo")
	if err != nil {
		return circulation.Statistics{}, err
	}

	policies, err := cfg.PolicyTable()
	if err != nil {
		return circulation.Statistics{}, err
	}

	engine, err := circulation.NewEngine(
		circulation.WithClock(now),
		circulation.WithIssuerName(cfg.LibraryName),
		circulation.WithPolicies(policies),
		circulation.WithNotifier(notifier),
		circulation.WithJournal(recorder),
		circulation.WithLogger(slog.New(demoWarnHandler{handler})),
	)
	if err != nil {
		return circulation.Statistics{}, err
	}

	holders := make([]circulation.HolderView, 0, 4)
	for _, h := range []demoHolder{
		{contact: circulation.Contact{Name: "Alice Johnson", Email: "alice@email.com", Phone: "+1234567890"}, category: circulation.CategoryStudent},
		{contact: circulation.Contact{Name: "Dr. Bob Smith", Email: "bob@email.com", Phone: "+1234567891"}, category: circulation.CategoryTeacher},
		{contact: circulation.Contact{Name: "Charlie Brown", Email: "charlie@email.com", Phone: "+1234567892"}, category: circulation.CategoryGuest},
		{contact: circulation.Contact{Name: "Eve Wilson", Email: "eve@library.com", Phone: "+1234567893"}, category: circulation.CategoryLibrarian},
	} {
		holder, registerErr := engine.RegisterHolder(ctx, uuid.Nil, h.contact, h.category)
		if registerErr != nil {
			return circulation.Statistics{}, fmt.Errorf("registering %s: %w", h.contact.Name, registerErr)
		}

		fmt.Fprintf(out, "Holder %q registered as %s\n", holder.Contact.Name, holder.Category)
		holders = append(holders, holder)
	}
	student, teacher, librarian := holders[0], holders[1], holders[3]

	items := make([]circulation.ItemView, 0, 4)
	for _, details := range []demoItem{
		{Title: "Java: The Complete Reference", Creator: "Herbert Schildt", Category: "Programming"},
		{Title: "Clean Code", Creator: "Robert Martin", Category: "Programming"},
		{Title: "Design Patterns", Creator: "Gang of Four", Category: "Software Engineering"},
		{Title: "Effective Java", Creator: "Joshua Bloch", Category: "Programming"},
	} {
		item, registerErr := engine.RegisterItem(ctx, uuid.Nil, details)
		if registerErr != nil {
			return circulation.Statistics{}, fmt.Errorf("registering %q: %w", details.Title, registerErr)
		}

		fmt.Fprintf(out, "Item %q added to the catalog\n", item.Title)
		items = append(items, item)
	}
	javaReference, cleanCode := items[0], items[1]

	fmt.Fprintln(out, "\n=== Issuing and reserving ===")
	for _, loan := range []struct {
		item   circulation.ItemView
		holder circulation.HolderView
	}{{javaReference, student}, {cleanCode, teacher}} {
		issued, issueErr := engine.Issue(ctx, loan.item.ID, loan.holder.ID)
		if issueErr != nil {
			return circulation.Statistics{}, fmt.Errorf("issuing %q: %w", loan.item.Title, issueErr)
		}

		// notices share out with the demo lines
		if err = engine.Flush(ctx); err != nil {
			return circulation.Statistics{}, err
		}

		fmt.Fprintf(out, "Item %q issued to %s, due %s\n", issued.Title, loan.holder.Contact.Name, issued.DueDate.Format(time.DateOnly))
	}

	if _, err = engine.Reserve(ctx, javaReference.ID, teacher.ID); err != nil {
		return circulation.Statistics{}, fmt.Errorf("reserving %q: %w", javaReference.Title, err)
	}
	fmt.Fprintf(out, "Item %q reserved for %s\n", javaReference.Title, teacher.Contact.Name)

	fmt.Fprintln(out, "\n=== Search results for \"Java\" ===")
	for _, item := range engine.Search(circulation.MatchKeyword("Java")) {
		fmt.Fprintf(out, "%s by %s (%s), %s\n", item.Title, item.Creator, item.Category, item.State)
	}

	fmt.Fprintf(out, "\n=== Items issued to %s ===\n", student.Contact.Name)
	issued, err := engine.IssuedItems(student.ID)
	if err != nil {
		return circulation.Statistics{}, err
	}
	for _, item := range issued {
		fmt.Fprintf(out, "%s, due %s (%d days remaining)\n", item.Title, item.DueDate.Format(time.DateOnly), item.DaysUntilDue)
	}

	fmt.Fprintln(out, "\n=== Returning ===")
	returned, err := engine.Return(ctx, javaReference.ID, student.ID)
	if err != nil {
		return circulation.Statistics{}, fmt.Errorf("returning %q: %w", javaReference.Title, err)
	}
	if err = engine.Flush(ctx); err != nil {
		return circulation.Statistics{}, err
	}
	fmt.Fprintf(out, "Item %q returned by %s\n", javaReference.Title, student.Contact.Name)
	if next, ok := engine.Catalog().FindHolder(returned.HandedOffTo); ok {
		fmt.Fprintf(out, "Item %q automatically issued to %s\n", javaReference.Title, next.Contact.Name)
	}

	stats := engine.Statistics(now())
	fmt.Fprintln(out, "\n=== Library statistics ===")
	fmt.Fprintf(out, "Total items: %d\n", stats.TotalItems)
	fmt.Fprintf(out, "Available: %d\n", stats.Available)
	fmt.Fprintf(out, "On loan: %d\n", stats.OnLoan)
	fmt.Fprintf(out, "Overdue: %d\n", stats.Overdue)
	fmt.Fprintf(out, "Holders: %d\n", stats.Holders)
	fmt.Fprintf(out, "Pending reservations: %d\n", stats.PendingReservations)

	fmt.Fprintf(out, "\n=== Overdue items (requested by %s) ===\n", librarian.Contact.Name)
	overdue, err := engine.OverdueReport(ctx, librarian.ID)
	if err != nil {
		return circulation.Statistics{}, err
	}
	if len(overdue) == 0 {
		fmt.Fprintln(out, "No overdue items found.")
	}
	for _, item := range overdue {
		fmt.Fprintf(out, "%s, due %s\n", item.Title, item.DueDate.Format(time.DateOnly))
	}

	fmt.Fprintf(out, "\nJournal entries: %d\n", store.Len())

	return stats, nil
}

// demoWarnHandler keeps engine chatter out of the demo output unless something goes wrong.
type demoWarnHandler struct {
	slog.Handler
}

func (h demoWarnHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}
