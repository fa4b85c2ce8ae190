package store

// CompleteTrip exposes the closing write of the Mongo ledger to tests.
var CompleteTrip = (*MongoTripLedger).complete
