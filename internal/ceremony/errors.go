package ceremony

import "errors"

// ErrAlreadyRun は使い切りのMachineを再実行しようとしたことを表す。
var ErrAlreadyRun = errors.New("ceremony machine already run")
