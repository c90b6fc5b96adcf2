package oracle

import (
	"fmt"

	"github.com/soundprediction/reconcile/pkg/nlp"
	"github.com/soundprediction/reconcile/pkg/types"
)

// judgmentMessages builds the fixed two-summary prompt. PRIMARY is the fact
// under test; SECONDARY is the fact that may supersede it. The model is asked
// for a bare True/False, but Judge callers must still coerce the response
// because models routinely editorialize.
func judgmentMessages(primary, secondary Summary) []types.Message {
	sysPrompt := `You are a helpful assistant that determines whether a new fact invalidates an existing fact in a temporal knowledge graph.`

	userPrompt := fmt.Sprintf(`
<PRIMARY FACT>
statement: %s
predicate: %s
valid_at: %s
invalid_at: %s
</PRIMARY FACT>
<SECONDARY FACT>
statement: %s
predicate: %s
valid_at: %s
invalid_at: %s
</SECONDARY FACT>

Both facts describe relationships in a knowledge graph. Timestamps are ISO-8601; "unknown" means the bound was never established.

Determine whether the SECONDARY FACT invalidates the PRIMARY FACT.

The PRIMARY FACT is invalidated if:
1. The SECONDARY FACT directly contradicts it (the same relationship now holds with a different value or party)
2. The SECONDARY FACT states that the relationship in the PRIMARY FACT has ended
3. The two facts cannot both hold over overlapping time

The PRIMARY FACT is NOT invalidated if the facts describe unrelated relationships, can both hold simultaneously, or the SECONDARY FACT merely adds detail.

Respond with exactly one word: True if the PRIMARY FACT is invalidated, False otherwise. Do not explain.
`,
		primary.Text, primary.Predicate, primary.ValidAt, primary.InvalidAt,
		secondary.Text, secondary.Predicate, secondary.ValidAt, secondary.InvalidAt)

	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}
}
