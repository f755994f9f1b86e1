package aggregator

import "errors"

var errZeroParsed = errors.New("aggregator: fewer than one asset parsed successfully")
