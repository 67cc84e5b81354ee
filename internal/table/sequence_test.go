package table

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/livetable/internal/query"
	"github.com/roach88/livetable/internal/schema"
)

// liveCheck compares one live query against a brute-force evaluation over
// every row of the table.
type liveCheck struct {
	q     *query.Query
	check func(t *testing.T, q *query.Query, all []*query.Row)
}

func matching(all []*query.Row, f schema.Filter) []string {
	ids := []string{}
	for _, r := range all {
		if f.Matches(r) {
			ids = append(ids, r.ID())
		}
	}
	slices.Sort(ids)
	return ids
}

func sortedIDs(rows []*query.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID())
	}
	slices.Sort(ids)
	return ids
}

func requireSorted(t *testing.T, rows []*query.Row, compare func(a, b *query.Row) int, msg string) {
	t.Helper()
	for i := 1; i < len(rows); i++ {
		require.LessOrEqual(t, compare(rows[i-1], rows[i]), 0, "%s: rows %d and %d out of order", msg, i-1, i)
	}
}

func sequenceChecks(t *testing.T, tbl *Table) []liveCheck {
	t.Helper()
	open := schema.Filter{"string": "a"}
	ones := schema.Filter{"number": float64(1)}

	sortedOpen, err := tbl.Query(query.Options{Filter: open, Sort: query.NewSort(byNumber)})
	require.NoError(t, err)
	unsorted, err := tbl.Query(query.Options{Filter: ones})
	require.NoError(t, err)
	grouped, err := tbl.Query(query.Options{GroupBy: "string", Sort: query.OrderBy("number")})
	require.NoError(t, err)
	counts, err := tbl.Count(query.CountOptions{GroupBy: "string"})
	require.NoError(t, err)
	total, err := tbl.Count(query.CountOptions{Filter: open})
	require.NoError(t, err)

	return []liveCheck{
		{sortedOpen, func(t *testing.T, q *query.Query, all []*query.Row) {
			requireSorted(t, q.Rows(), byNumber, "sorted")
			require.Equal(t, matching(all, open), sortedIDs(q.Rows()))
		}},
		{unsorted, func(t *testing.T, q *query.Query, all []*query.Row) {
			require.Equal(t, matching(all, ones), sortedIDs(q.Rows()))
		}},
		{grouped, func(t *testing.T, q *query.Query, all []*query.Row) {
			var seen []*query.Row
			for g, rows := range q.Groups() {
				require.NotEmpty(t, rows, "group %v is empty", g)
				requireSorted(t, rows, func(a, b *query.Row) int {
					return schema.Compare(a.Get("number"), b.Get("number"))
				}, fmt.Sprintf("group %v", g))
				for _, r := range rows {
					require.Equal(t, g, r.Get("string"))
				}
				seen = append(seen, rows...)
			}
			require.Equal(t, sortedIDs(all), sortedIDs(seen))
		}},
		{counts, func(t *testing.T, q *query.Query, all []*query.Row) {
			want := map[schema.Value]int{}
			for _, r := range all {
				want[r.Get("string")]++
			}
			got := q.GroupCounts()
			require.Len(t, got, len(want))
			for g, n := range want {
				require.Equal(t, n, got[g], "group %v", g)
			}
		}},
		{total, func(t *testing.T, q *query.Query, all []*query.Row) {
			require.Equal(t, len(matching(all, open)), q.Count())
		}},
	}
}

func TestTable_RandomSequencesKeepResultsConsistent(t *testing.T) {
	for _, seed := range []uint64{1, 7, 42} {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed*31+1))
			tbl := newTable(t, nil, numberSchema)
			checks := sequenceChecks(t, tbl)
			strs := []string{"a", "b", "c"}

			var ids []string
			for step := range 300 {
				switch op := rng.IntN(10); {
				case op < 4 || len(ids) == 0:
					ids = append(ids, mustInsert(t, tbl, map[string]any{
						"number": rng.IntN(5),
						"string": strs[rng.IntN(len(strs))],
					}))
				case op < 8:
					id := ids[rng.IntN(len(ids))]
					if rng.IntN(2) == 0 {
						require.NoError(t, tbl.Update(id, "number", rng.IntN(5)))
					} else {
						require.NoError(t, tbl.Update(id, "string", strs[rng.IntN(len(strs))]))
					}
				default:
					i := rng.IntN(len(ids))
					require.NoError(t, tbl.Delete(ids[i]))
					ids = slices.Delete(ids, i, i+1)
				}

				all := tbl.Rows()
				require.Len(t, all, len(ids), "step %d", step)
				for _, c := range checks {
					c.check(t, c.q, all)
				}
			}
		})
	}
}
