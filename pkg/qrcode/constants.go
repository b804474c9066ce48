package qrcode

const (
	operationCreateCode   = "create_code"
	operationUpdateCode   = "update_code"
	operationDeleteCode   = "delete_code"
	operationSavePoints   = "save_points"
	operationRemovePoints = "remove_points"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
