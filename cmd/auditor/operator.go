package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andykuo1/progress-auditor-sub001/audit"
	"github.com/andykuo1/progress-auditor-sub001/generic"
	"github.com/andykuo1/progress-auditor-sub001/review"
)

const promptHelp = `  <enter>             leave open
  s                   skip this error
  <type> [params...]  add a review, e.g. add-owner-alias p1 pat.alt
  q                   stop and keep what was entered`

// promptOperator asks for corrections on a terminal, one open error at a
// time. Reviews it creates are dated today and numbered in session order.
type promptOperator struct {
	in    *bufio.Scanner
	out   io.Writer
	today generic.TimePoint
	seq   int
}

func newPromptOperator(in io.Reader, out io.Writer, now time.Time) *promptOperator {
	return &promptOperator{
		in:    bufio.NewScanner(in),
		out:   out,
		today: generic.FromTime(now),
	}
}

func (p *promptOperator) Propose(ctx context.Context, open []audit.Error) ([]review.Review, bool, error) {
	fmt.Fprintf(p.out, "\n%d open errors\n%s\n", len(open), promptHelp)

	var reviews []review.Review
	for _, e := range open {
		if err := ctx.Err(); err != nil {
			return reviews, false, err
		}
		fmt.Fprintf(p.out, "\n%s\n", e)
		for _, d := range e.Detail {
			fmt.Fprintf(p.out, "    %s\n", d)
		}
		if len(e.Options) > 0 {
			fmt.Fprintf(p.out, "  options: %s\n", strings.Join(e.Options, ", "))
		}
		fmt.Fprint(p.out, "> ")

		if !p.in.Scan() {
			// end of input stops the loop like q
			return reviews, false, p.in.Err()
		}
		fields := strings.Fields(p.in.Text())
		switch {
		case len(fields) == 0:
			continue
		case len(fields) == 1 && fields[0] == "q":
			return reviews, false, nil
		case len(fields) == 1 && fields[0] == "s":
			reviews = append(reviews, p.review(review.TypeSkipOneError, []string{e.ID}))
		default:
			reviews = append(reviews, p.review(review.Type(fields[0]), fields[1:]))
		}
	}
	// Nothing entered means another pass would show the same errors.
	return reviews, len(reviews) > 0, nil
}

func (p *promptOperator) review(t review.Type, params []string) review.Review {
	p.seq++
	return review.Review{
		ID:      fmt.Sprintf("cli-%s-%d", p.today, p.seq),
		Date:    p.today,
		Comment: "entered at prompt",
		Type:    t,
		Params:  params,
	}
}
