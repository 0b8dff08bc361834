package rule

// DefaultMatcherRules returns the built-in classification rules in their
// evaluation order. R001 intentionally precedes R005: a rate-limit finding
// mentions "rate limit" before any credential keyword can hit.
func DefaultMatcherRules() []*MatcherRule {
	return []*MatcherRule{
		{
			ID:             "R001",
			Description:    "Missing rate limiting on public authentication endpoints",
			Matcher:        "rate limit",
			BusinessImpact: ImpactCritical,
			Action:         "Implement rate limiting and CAPTCHA on all auth endpoints",
			Timeframe:      "Immediate",
			Confidence:     "High",
		},
		{
			ID:             "R002",
			Description:    "Use of weak cipher TLS configuration",
			Matcher:        "weak cipher|tls|ssl",
			BusinessImpact: ImpactHigh,
			Action:         "Disable weak ciphers and enforce TLS 1.2+ with modern suites",
			Timeframe:      "Within 24 hours",
			Confidence:     "High",
		},
		{
			ID:             "R003",
			Description:    "Exposed internal dev endpoints",
			Matcher:        "debug|dev endpoint|internal",
			BusinessImpact: ImpactMedium,
			Action:         "Restrict dev endpoints to VPN or internal network only",
			Timeframe:      "Within 48 hours",
			Confidence:     "High",
		},
		{
			ID:             "R004",
			Description:    "SCA dev-only dependency vulnerability",
			Matcher:        "dev dependency|devDependencies",
			BusinessImpact: ImpactLow,
			Action:         "Update dev dependencies; no production impact",
			Timeframe:      "Next sprint",
			Confidence:     "Medium",
		},
		{
			ID:             "R005",
			Description:    "Hardcoded secrets or credentials",
			Matcher:        "hardcoded|secret|password|api.?key|token",
			BusinessImpact: ImpactCritical,
			Action:         "Rotate credentials immediately; remove from codebase; use secrets manager",
			Timeframe:      "Immediate",
			Confidence:     "High",
		},
		{
			ID:             "R006",
			Description:    "SQL injection vulnerability",
			Matcher:        "sql injection|sqlmap",
			BusinessImpact: ImpactCritical,
			Action:         "Use parameterized queries or ORM; validate all user input",
			Timeframe:      "Immediate",
			Confidence:     "High",
		},
		{
			ID:             "R007",
			Description:    "Cross-site scripting (XSS) vulnerability",
			Matcher:        "xss|cross.?site.*script",
			BusinessImpact: ImpactHigh,
			Action:         "Sanitize all user input; use Content Security Policy headers",
			Timeframe:      "Within 24 hours",
			Confidence:     "High",
		},
		{
			ID:             "R008",
			Description:    "Missing CORS headers or overly permissive CORS",
			Matcher:        "cors|cross.?origin",
			BusinessImpact: ImpactMedium,
			Action:         "Implement strict CORS policy; restrict to trusted origins only",
			Timeframe:      "Within 48 hours",
			Confidence:     "High",
		},
		{
			ID:             "R009",
			Description:    "Unsafe cryptography or weak hashing",
			Matcher:        "md5|sha1|weak hash|unsafe crypto",
			BusinessImpact: ImpactHigh,
			Action:         "Use PBKDF2, bcrypt, or Argon2 for passwords; SHA256+ for other data",
			Timeframe:      "Within 48 hours",
			Confidence:     "High",
		},
		{
			ID:             "R010",
			Description:    "Missing security headers",
			Matcher:        "security header|x-frame|x-content|csp",
			BusinessImpact: ImpactMedium,
			Action:         "Add CSP, X-Frame-Options, X-Content-Type-Options headers",
			Timeframe:      "Within 48 hours",
			Confidence:     "Medium",
		},
	}
}

// DefaultRemediationRules returns the built-in vulnerability pricing table.
// RLS_BYPASS on a revenue PCI asset ranks 100 + 20 + 30 = 150.
func DefaultRemediationRules() []RemediationRule {
	return []RemediationRule{
		{
			VulnType:            "RLS_BYPASS",
			ContextTrigger:      "ALL",
			BasePriorityScore:   100,
			RevenueBonus:        20,
			ComplianceBonus:     30,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Immediate RLS Enforcement & Audit Review",
			FixTemplate:         "ALTER TABLE %s FORCE ROW LEVEL SECURITY;",
			SeverityLabel:       "CRITICAL",
			MitigationTimeHours: 1,
		},
		{
			VulnType:            "WEAK_MASKING",
			ContextTrigger:      "ALL",
			BasePriorityScore:   90,
			RevenueBonus:        0,
			ComplianceBonus:     35,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Replace masking function with irreversible tokenization",
			FixTemplate:         "",
			SeverityLabel:       "CRITICAL",
			MitigationTimeHours: 4,
		},
		{
			VulnType:            "ENCRYPTION_FAILURE",
			ContextTrigger:      "ALL",
			BasePriorityScore:   95,
			RevenueBonus:        15,
			ComplianceBonus:     30,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Re-encrypt affected columns and rotate keys",
			FixTemplate:         "",
			SeverityLabel:       "CRITICAL",
			MitigationTimeHours: 4,
		},
		{
			VulnType:            "PRIVILEGE_ESCALATION",
			ContextTrigger:      "ALL",
			BasePriorityScore:   95,
			RevenueBonus:        20,
			ComplianceBonus:     25,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Revoke excess grants and review role membership",
			FixTemplate:         "REVOKE ALL ON %s FROM PUBLIC;",
			SeverityLabel:       "CRITICAL",
			MitigationTimeHours: 2,
		},
		{
			VulnType:            "RATE_LIMIT_BYPASS",
			ContextTrigger:      "ALL",
			BasePriorityScore:   70,
			RevenueBonus:        20,
			ComplianceBonus:     10,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Enforce per-client rate limits at the gateway",
			FixTemplate:         "",
			SeverityLabel:       "HIGH",
			MitigationTimeHours: 24,
		},
		{
			VulnType:            "UNLOGGED_WRITES",
			ContextTrigger:      "ALL",
			BasePriorityScore:   65,
			RevenueBonus:        10,
			ComplianceBonus:     30,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Enable write auditing on the affected tables",
			FixTemplate:         "",
			SeverityLabel:       "HIGH",
			MitigationTimeHours: 24,
		},
		{
			VulnType:            "AUDIT_LOG_GAP",
			ContextTrigger:      "ALL",
			BasePriorityScore:   60,
			RevenueBonus:        5,
			ComplianceBonus:     35,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Close the audit coverage gap and backfill where possible",
			FixTemplate:         "",
			SeverityLabel:       "HIGH",
			MitigationTimeHours: 48,
		},
		{
			VulnType:            "COMPLIANCE_GAP",
			ContextTrigger:      "ALL",
			BasePriorityScore:   55,
			RevenueBonus:        5,
			ComplianceBonus:     35,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Remediate the control gap before the next audit window",
			FixTemplate:         "",
			SeverityLabel:       "MEDIUM",
			MitigationTimeHours: 48,
		},
		{
			VulnType:            "PARTITION_FAILURE",
			ContextTrigger:      "ALL",
			BasePriorityScore:   40,
			RevenueBonus:        10,
			ComplianceBonus:     10,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Repair partitioning and verify retention jobs",
			FixTemplate:         "",
			SeverityLabel:       "MEDIUM",
			MitigationTimeHours: 72,
		},
		{
			VulnType:            "PERFORMANCE_DEGRADATION",
			ContextTrigger:      "ALL",
			BasePriorityScore:   30,
			RevenueBonus:        15,
			ComplianceBonus:     0,
			ExposureMultiplier:  1.0,
			RequiredAction:      "Profile the regression and restore baseline throughput",
			FixTemplate:         "",
			SeverityLabel:       "LOW",
			MitigationTimeHours: 168,
		},
	}
}
