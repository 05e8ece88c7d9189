package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/venator/internal/models"
)

// expansion templates per approach, applied when no SemanticScorer is
// wired. %s is the topic.
var expansionTemplates = map[models.ResearchApproach][]string{
	models.ApproachBroad: {
		"%s", "%s overview", "%s introduction", "%s guide", "what is %s",
	},
	models.ApproachFocused: {
		"%s", "%s details", "%s specification", "%s documentation",
	},
	models.ApproachAcademic: {
		"%s", "%s research", "%s study", "%s paper", "%s methodology",
	},
	models.ApproachCurrentEvents: {
		"%s", "%s news", "%s latest", "%s announcement", "%s %d",
	},
	models.ApproachComparative: {
		"%s", "%s comparison", "%s vs", "%s alternatives", "%s tradeoffs",
	},
}

// expandQueries produces the lexical query fan-out for a topic. The topic
// itself is always the first query.
func expandQueries(topic string, approach models.ResearchApproach, k int) []string {
	templates, ok := expansionTemplates[approach]
	if !ok {
		templates = expansionTemplates[models.ApproachBroad]
	}

	year := time.Now().Year()
	queries := make([]string, 0, k)
	seen := make(map[string]struct{})
	for _, tpl := range templates {
		if len(queries) == k {
			break
		}
		var q string
		if strings.Contains(tpl, "%d") {
			q = fmt.Sprintf(tpl, topic, year)
		} else {
			q = fmt.Sprintf(tpl, topic)
		}
		q = strings.TrimSpace(q)
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}
