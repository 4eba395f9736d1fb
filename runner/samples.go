package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andykuo1/progress-auditor-sub001/config"
)

// Sample is a ready-made workspace for demos and smoke tests.
type Sample struct {
	ID          string
	Description string
	// Today pins the audit date so the sample reads the same every time.
	Today       string
	files       map[string]string
}

// =============================================================================
// SAMPLE DEFINITIONS
// =============================================================================

var samples = []Sample{
	{
		ID:          "cohort",
		Description: "Three participants, one leave period, everything resolvable",
		Today:       "2024-02-01",
		files: map[string]string{
			"roster.csv": `id,name,owner_keys,start,end
p1,Pat,pat@example.com,2024-01-01,2024-01-27
p2,Sam,sam@example.com,2024-01-08,2024-01-27
p3,Lee,lee@example.com,2024-01-01,2024-01-20
`,
			"vacations.csv": `owner_key,start,end,padding
p3,2024-01-14,2024-01-20,
`,
			"submissions.csv": `owner_key,post_id,timestamp,header,body
pat@example.com,100,2024-01-02T10:00:00Z,Pat,hello from Pat
pat@example.com,101,2024-01-06T18:00:00Z,Week 1,did the reading
pat@example.com,102,2024-01-15T09:00:00Z,Week 2,late but done
pat@example.com,103,2024-01-21T09:00:00Z,Week 3,on time
sam@example.com,200,2024-01-09T10:00:00Z,Sam,hi
sam@example.com,201,2024-01-14T12:00:00Z,Week 1,first week
sam@example.com,202,2024-01-21T12:00:00Z,Week 2,second week
lee@example.com,300,2024-01-03T12:00:00Z,Lee,hey
lee@example.com,301,2024-01-07T12:00:00Z,Week 1,week one
lee@example.com,302,2024-01-21T12:00:00Z,Week 2,after leave
`,
			"reviews.csv": `id,date,comment,type,param1
`,
		},
	},
	{
		ID:          "needs-review",
		Description: "An unknown owner key and an unlabelled post, left for the operator",
		Today:       "2024-02-01",
		files: map[string]string{
			"roster.csv": `id,name,owner_keys,start,end
p1,Pat,pat@example.com,2024-01-01,2024-01-20
`,
			"vacations.csv": `owner_key,start,end,padding
`,
			"submissions.csv": `owner_key,post_id,timestamp,header,body
pat.alt@example.com,100,2024-01-06T10:00:00Z,Week 1,from my other account
pat@example.com,101,2024-01-13T10:00:00Z,my update,no label
pat@example.com,102,2024-01-20T10:00:00Z,Week 3,done
`,
			"reviews.csv": `id,date,comment,type,param1
`,
		},
	},
}

// Samples lists the built-in samples.
func Samples() []Sample {
	return append([]Sample(nil), samples...)
}

// WriteSample writes sample id into dir with a default config file. Files
// already in dir are not overwritten.
func WriteSample(dir, id string) error {
	var sample *Sample
	for i := range samples {
		if samples[i].ID == id {
			sample = &samples[i]
		}
	}
	if sample == nil {
		return fmt.Errorf("unknown sample %q", id)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	cfg := strings.Replace(config.GenerateDefault(), `today: ""`, `today: "`+sample.Today+`"`, 1)
	files := map[string]string{config.FileName: cfg}
	for name, body := range sample.files {
		files[name] = body
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}
