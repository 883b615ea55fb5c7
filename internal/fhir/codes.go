package fhir

// BaseURL prefixes every code system, extension and canonical defined by
// this application.
const BaseURL = "https://measure-hub.phrazzld.dev/fhir"

// Code systems.
const (
	CodeSystemTaskCode     = BaseURL + "/CodeSystem/TaskCode"
	CodeSystemTaskInput    = BaseURL + "/CodeSystem/TaskInput"
	CodeSystemTaskOutput   = BaseURL + "/CodeSystem/TaskOutput"
	CodeSystemMessageEvent = BaseURL + "/CodeSystem/MessageEvent"
)

// Task codes and parameter types.
const (
	TaskCodeEvaluateMeasure = "evaluate-measure"

	InputMeasure = "measure"

	OutputMeasureReport = "measure-report"
	OutputError         = "error"
)

// Message events.
const (
	EventEvaluateMeasure = "evaluate-measure"
	EventFulfillTask     = "fulfill-task"
)

// Extensions and identifier systems carrying correlation data.
const (
	ExtensionMessageID           = BaseURL + "/StructureDefinition/message-id"
	ExtensionResponseDestination = BaseURL + "/StructureDefinition/response-destination"

	IdentifierSystemMessageID = BaseURL + "/sid/message-id"
)

// ActivityDefinitionEvaluateMeasure is the canonical URL every evaluate-measure
// Task instantiates.
const ActivityDefinitionEvaluateMeasure = BaseURL + "/ActivityDefinition/evaluate-measure"

// ResponseCode is the outcome code of a response message.
type ResponseCode string

// Response codes defined by FHIR.
const (
	ResponseOK             ResponseCode = "ok"
	ResponseTransientError ResponseCode = "transient-error"
	ResponseFatalError     ResponseCode = "fatal-error"
)
