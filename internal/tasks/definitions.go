package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	// Register general tasks
	RegisterHandler(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)

	// Register invite tasks
	RegisterHandler(SweepExpiredInvitesTask.TaskID(), SweepExpiredInvitesTask.HandleExecution)

	// Register session tasks
	RegisterHandler(MaterializeSessionsTask.TaskID(), MaterializeSessionsTask.HandleExecution)

	// Register notification tasks
	RegisterHandler(SendNotificationTask.TaskID(), SendNotificationTask.HandleExecution)
}
