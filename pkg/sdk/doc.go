// Package lexdrill embeds the lexdrill learning engine in a Go program
// without running the HTTP service.
//
// The client selects study items, serves cached drills with deterministic
// fallbacks, and aggregates answers into spaced-repetition progress. It needs
// a Redis or Valkey server for session windows and the drill inventory, and a
// PostgreSQL or SQLite database for the catalog and progress records.
//
//	client, _ := lexdrill.New(ctx,
//	    lexdrill.WithValkey("localhost:6379", ""),
//	    lexdrill.WithSQLite("file:lexdrill.db"),
//	)
//	defer client.Close()
//
//	_, _ = client.ImportItems(ctx, items)
//	drills, _ := client.NextDrills(ctx, "u1", lexdrill.ModeL1Mixed, 10)
//	_, _ = client.Submit(ctx, lexdrill.Answer{UserID: "u1", ItemID: drills[0].ItemID, Pass: true})
//	_, _ = client.Flush(ctx, "u1")
//
// Cache misses enqueue replenishment jobs. Configure WithGenerator and call
// RunWorker in a goroutine to process them in the same process.
package lexdrill
