package suredone

// Action is the discriminator carried by the first row of a bulk batch.
type Action string

const (
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionRelist Action = "relist"
	ActionEnd    Action = "end"
	ActionDelete Action = "delete"
)

// BulkBatch builds the wire-format batch for a bulk action. Row 0 carries
// "action=<action>" as its first field and every later row an empty
// placeholder in the same position; SureDone matches the columns up
// positionally, so the placeholder is part of the schema contract.
//
// The caller's rows are copied, never mutated.
func BulkBatch(action Action, rows [][]string) [][]string {
	batch := make([][]string, len(rows))
	for i, row := range rows {
		marker := ""
		if i == 0 {
			marker = "action=" + string(action)
		}
		copied := make([]string, 0, len(row)+1)
		copied = append(copied, marker)
		copied = append(copied, row...)
		batch[i] = copied
	}
	return batch
}

// deleteRows turns a GUID list into bulk rows: a header row naming the guid
// column, then one row per product.
func deleteRows(guids []string) [][]string {
	rows := make([][]string, 0, len(guids)+1)
	rows = append(rows, []string{"guid"})
	for _, guid := range guids {
		rows = append(rows, []string{guid})
	}
	return rows
}
