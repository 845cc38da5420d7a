package ledger

var ReservedBy = reservedBy
