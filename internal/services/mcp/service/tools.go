package service

import "github.com/louisbranch/storyloom/internal/services/mcp/domain"

func messageTools(service domain.ChatService, notify domain.ResourceUpdateNotifier) []toolRegistration {
	return []toolRegistration{
		typedTool(domain.ChatMessageAddTool(), domain.ChatMessageAddHandler(service, notify)),
		typedTool(domain.ChatMessageEditTool(), domain.ChatMessageEditHandler(service, notify)),
		typedTool(domain.ChatMessageDeleteTool(), domain.ChatMessageDeleteHandler(service, notify)),
		typedTool(domain.ChatMessagesTruncateTool(), domain.ChatMessagesTruncateHandler(service, notify)),
		typedTool(domain.ChatCivitJobRecordTool(), domain.ChatCivitJobRecordHandler(service, notify)),
	}
}

func chapterTools(service domain.ChatService, notify domain.ResourceUpdateNotifier) []toolRegistration {
	return []toolRegistration{
		typedTool(domain.ChatChapterCompactTool(), domain.ChatChapterCompactHandler(service, notify)),
		typedTool(domain.ChatChapterEditTool(), domain.ChatChapterEditHandler(service, notify)),
		typedTool(domain.ChatChapterDeleteTool(), domain.ChatChapterDeleteHandler(service, notify)),
		typedTool(domain.ChatStorySetTool(), domain.ChatStorySetHandler(service, notify)),
	}
}

func readTools(service domain.ChatService) []toolRegistration {
	return []toolRegistration{
		typedTool(domain.ChatHistoryGetTool(), domain.ChatHistoryGetHandler(service)),
		typedTool(domain.ChatChapterMessagesGetTool(), domain.ChatChapterMessagesGetHandler(service)),
		typedTool(domain.ChatContextGetTool(), domain.ChatContextGetHandler(service)),
	}
}

func chatResources(service domain.ChatService) []resourceRegistration {
	return []resourceRegistration{
		{template: domain.ChatHistoryResourceTemplate(), handler: domain.ChatHistoryResourceHandler(service)},
		{template: domain.ChatContextResourceTemplate(), handler: domain.ChatContextResourceHandler(service)},
	}
}
