// Package mongo provides the mongo connection used by the document-backed
// implementations of the event ledger, the subscription record store and the
// failed-operation store.
//
// ConnectDatabase returns a database handle the stores take their
// collections from:
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//
//	led := ledger.NewMongoLedger(db.Collection("processed_events"))
package mongo
