package domain

var baseCapabilities = []string{
	"code_generation",
	"file_manipulation",
	"terminal_commands",
	"debugging",
	"testing",
}

var typeCapabilities = map[AgentType][]string{
	AgentAutonomous:    {"task_planning", "multi_file_refactoring", "architecture_design"},
	AgentCollaborative: {"code_review", "pair_programming", "knowledge_sharing"},
	AgentSpecialized:   {"domain_expertise", "performance_optimization", "security_analysis"},
	AgentMultimodal:    {"image_analysis", "voice_processing", "diagram_generation"},
}

type AgentTypeInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

var typeInfo = map[AgentType]AgentTypeInfo{
	AgentAutonomous: {
		Name:        "Autonomous Agent",
		Description: "Self-directing agents that can plan and execute complex multi-step tasks",
	},
	AgentCollaborative: {
		Name:        "Collaborative Agent",
		Description: "Agents designed to work alongside human developers in real-time",
	},
	AgentSpecialized: {
		Name:        "Specialized Agent",
		Description: "Domain-specific agents with deep expertise in particular areas",
	},
	AgentMultimodal: {
		Name:        "Multimodal Agent",
		Description: "Advanced agents that can process text, images, voice, and diagrams",
	},
}

// CapabilitiesFor returns a fresh copy of the capability set for agentType.
// Unknown types get the base set.
func CapabilitiesFor(agentType AgentType) []string {
	extra := typeCapabilities[agentType]
	out := make([]string, 0, len(baseCapabilities)+len(extra))
	out = append(out, baseCapabilities...)
	return append(out, extra...)
}

func AgentTypeCatalog() map[AgentType]AgentTypeInfo {
	out := make(map[AgentType]AgentTypeInfo, len(typeInfo))
	for agentType, info := range typeInfo {
		info.Capabilities = CapabilitiesFor(agentType)
		out[agentType] = info
	}
	return out
}
